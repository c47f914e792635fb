package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/pointmass/agent"
	"github.com/samuelfneumann/pointmass/timestep"
	"github.com/samuelfneumann/pointmass/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
)

// Noisy wraps a policy to add exploration noise to its actions. In
// training mode, each action dimension a is replaced by
//
//	clip(a + U(-1, 1) * ε, bounds.Min, bounds.Max)
//
// where ε is decayed towards a floor by calling Decay. In evaluation
// mode the wrapped policy's actions are returned unchanged.
type Noisy struct {
	agent.NNPolicy
	bounds r1.Interval
	noise  distuv.Uniform

	epsilon    float64
	minEpsilon float64
	decay      float64
}

var _ agent.Explorer = &Noisy{}

// NewNoisy returns a new Noisy policy which wraps policy. Exploration
// starts at epsilon and is multiplied by decay on each call to Decay,
// but never drops below minEpsilon.
func NewNoisy(policy agent.NNPolicy, epsilon, minEpsilon, decay float64,
	bounds r1.Interval, seed uint64) (*Noisy, error) {
	if minEpsilon < 0 || epsilon < minEpsilon {
		return nil, fmt.Errorf("newNoisy: need 0 <= min epsilon (%v) <= "+
			"epsilon (%v)", minEpsilon, epsilon)
	}
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("newNoisy: decay %v ∉ (0, 1]", decay)
	}

	noise := distuv.Uniform{Min: -1.0, Max: 1.0, Src: rand.NewSource(seed)}

	return &Noisy{
		NNPolicy:   policy,
		bounds:     bounds,
		noise:      noise,
		epsilon:    epsilon,
		minEpsilon: minEpsilon,
		decay:      decay,
	}, nil
}

// SelectAction selects an action from the wrapped policy and perturbs it
// when in training mode
func (n *Noisy) SelectAction(t timestep.TimeStep) (*mat.VecDense, error) {
	action, err := n.NNPolicy.SelectAction(t)
	if err != nil {
		return nil, fmt.Errorf("selectAction: %v", err)
	}
	if n.IsEval() {
		return action, nil
	}

	n.Perturb(action.RawVector().Data)
	return action, nil
}

// Perturb adds noise to actions in place, clipping them to the action
// bounds
func (n *Noisy) Perturb(actions []float64) {
	for i := range actions {
		actions[i] = floatutils.ClipInterval(
			actions[i]+n.noise.Rand()*n.epsilon, n.bounds)
	}
}

// Epsilon returns the current scale of the exploration noise
func (n *Noisy) Epsilon() float64 {
	return n.epsilon
}

// Decay decays the exploration noise once
func (n *Noisy) Decay() {
	n.epsilon = math.Max(n.minEpsilon, n.epsilon*n.decay)
}
