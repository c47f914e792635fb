package ddpg

import (
	"fmt"

	"github.com/samuelfneumann/pointmass/agent"
	env "github.com/samuelfneumann/pointmass/environment"
	"github.com/samuelfneumann/pointmass/expreplay"
	"github.com/samuelfneumann/pointmass/initwfn"
	"github.com/samuelfneumann/pointmass/solver"
)

// Config implements a configuration for a DDPG agent
type Config struct {
	ActorLayers  []int // Hidden layer sizes of the actor
	CriticLayers []int // Hidden layer sizes of the critic

	// Solvers for learning the weights of each network. Each DDPG agent
	// creates its own Gorgonia solvers from these.
	ActorSolver  *solver.Solver
	CriticSolver *solver.Solver

	// Initialization algorithms for hidden and output layer weights
	InitWFn       *initwfn.InitWFn
	OutputInitWFn *initwfn.InitWFn

	Gamma float64 // Discount factor of the update target
	Tau   float64 // Polyak averaging constant for target networks

	ExpReplay expreplay.Config

	// Exploration schedule of the behaviour policy
	EpsilonStart float64
	EpsilonMin   float64
	EpsilonDecay float64
}

// DefaultConfig returns the Config of a DDPG agent with two hidden
// layers of 128 units in both networks
func DefaultConfig() Config {
	return Config{
		ActorLayers:   []int{128, 128},
		CriticLayers:  []int{128, 128},
		ActorSolver:   must(solver.NewDefaultAdam(1e-4, 1.0)),
		CriticSolver:  must(solver.NewDefaultAdam(2e-4, 1.0)),
		InitWFn:       must(initwfn.NewGlorotU(1.0)),
		OutputInitWFn: must(initwfn.NewUniform(-0.003, 0.003)),
		Gamma:         0.99,
		Tau:           0.005,
		ExpReplay:     expreplay.DefaultConfig(),
		EpsilonStart:  1.0,
		EpsilonMin:    0.05,
		EpsilonDecay:  0.995,
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}
	return v
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// DDPG agent.
func (c Config) Validate() error {
	if len(c.ActorLayers) == 0 || len(c.CriticLayers) == 0 {
		return fmt.Errorf("validate: actor and critic need at least one " +
			"hidden layer")
	}
	for _, layers := range [][]int{c.ActorLayers, c.CriticLayers} {
		for _, size := range layers {
			if size < 1 {
				return fmt.Errorf("validate: invalid layer size %v", size)
			}
		}
	}

	if c.ActorSolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("validate: actor and critic solvers must be set")
	}
	if c.InitWFn == nil || c.OutputInitWFn == nil {
		return fmt.Errorf("validate: weight initializers must be set")
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma %v ∉ [0, 1]", c.Gamma)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau %v ∉ [0, 1]", c.Tau)
	}

	if c.EpsilonMin < 0 || c.EpsilonStart < c.EpsilonMin {
		return fmt.Errorf("validate: need 0 <= min epsilon (%v) <= "+
			"epsilon (%v)", c.EpsilonMin, c.EpsilonStart)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("validate: epsilon decay %v ∉ (0, 1]",
			c.EpsilonDecay)
	}

	if err := c.ExpReplay.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}

var _ agent.Config = Config{}

// ValidAgent returns whether the agent is valid for the configuration.
// That is, whether Agent a can be constructed with Config c.
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*DDPG)
	return ok
}

// CreateAgent creates a new DDPG agent based on the configuration
func (c Config) CreateAgent(e env.Environment, seed uint64) (agent.Agent,
	error) {
	return New(e, c, seed)
}
