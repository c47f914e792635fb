// Package ddpg implements the Deep Deterministic Policy Gradient
// algorithm with target networks and an experience replay buffer.
package ddpg

import (
	"fmt"

	"github.com/samuelfneumann/pointmass/agent"
	"github.com/samuelfneumann/pointmass/agent/nonlinear/continuous/policy"
	env "github.com/samuelfneumann/pointmass/environment"
	"github.com/samuelfneumann/pointmass/expreplay"
	"github.com/samuelfneumann/pointmass/network"
	ts "github.com/samuelfneumann/pointmass/timestep"
	"github.com/samuelfneumann/pointmass/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DDPG implements the Deep Deterministic Policy Gradient algorithm.
// Each call to Step performs one critic update, one actor update, and
// a Polyak update of both target networks.
//
// The networks live in four computational graphs:
//
//	behaviour: actor(s) for single observations, used to select actions
//	critic:    Q(s, a) for a batch, with the MSE loss to a target
//	actor:     Q(s, actor(s)) for a batch, using a copy of the critic
//	target:    Q'(s', actor'(s')) for a batch, providing update targets
type DDPG struct {
	// Behaviour policy which selects actions
	behaviour *policy.Noisy
	actor     *policy.DeterministicMLP

	// Critic learning graph
	trainCritic   *network.Critic
	criticTargets *G.Node // r + γ * Q'(s', actor'(s'))
	criticVM      G.VM
	criticSolver  G.Solver
	criticLoss    G.Value
	meanQ         G.Value

	// Actor learning graph. The actor's critic is never stepped, its
	// weights are copied from trainCritic before each actor update.
	trainActor  *network.MLP
	actorCritic *network.Critic
	actorVM     G.VM
	actorSolver G.Solver
	actorLoss   G.Value

	// Target networks
	targetActor  *network.MLP
	targetCritic *network.Critic
	targetVM     G.VM

	replay    expreplay.ExperienceReplayer
	batchSize int
	gamma     float64
	tau       float64

	// Previous timestep, used to build transitions to store
	prevStep ts.TimeStep
}

var _ agent.Closer = &DDPG{}

// New creates and returns a new DDPG agent
func New(e env.Environment, c Config, seed uint64) (*DDPG, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	actionSpec := e.ActionSpec()
	if actionSpec.Dims() != 1 {
		return nil, fmt.Errorf("new: actions must be 1-dimensional")
	}
	features := e.ObservationSpec().Dims()
	actionDims := actionSpec.Dims()
	batchSize := c.BatchSize()

	init := c.InitWFn.InitWFn()
	outputInit := c.OutputInitWFn.InitWFn()

	// Behaviour policy
	actor, err := policy.NewDeterministicMLP(e, 1, G.NewGraph(),
		c.ActorLayers, init, outputInit, "actor")
	if err != nil {
		return nil, fmt.Errorf("new: could not create actor: %v", err)
	}
	bounds := r1.Interval{
		Min: actionSpec.LowerBound.AtVec(0),
		Max: actionSpec.UpperBound.AtVec(0),
	}
	behaviour, err := policy.NewNoisy(actor, c.EpsilonStart, c.EpsilonMin,
		c.EpsilonDecay, bounds, seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour policy: %v",
			err)
	}

	d := &DDPG{
		behaviour: behaviour,
		actor:     actor,
		batchSize: batchSize,
		gamma:     c.Gamma,
		tau:       c.Tau,
	}

	// Critic learning graph: MSE between Q(s, a) and the update target
	trainCritic, err := network.NewCritic(G.NewGraph(), features,
		actionDims, batchSize, c.CriticLayers, init, outputInit, "critic")
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}
	d.trainCritic = trainCritic
	d.criticTargets = G.NewMatrix(
		trainCritic.Graph(),
		tensor.Float64,
		G.WithShape(batchSize, 1),
		G.WithName("criticTargets"),
		G.WithInit(G.Zeroes()),
	)
	criticCost := G.Must(G.Sub(trainCritic.Prediction(), d.criticTargets))
	criticCost = G.Must(G.Square(criticCost))
	criticCost = G.Must(G.Mean(criticCost))
	G.Read(criticCost, &d.criticLoss)
	G.Read(G.Must(G.Mean(trainCritic.Prediction())), &d.meanQ)

	if _, err := G.Grad(criticCost, trainCritic.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute critic gradient: %v",
			err)
	}
	d.criticVM = G.NewTapeMachine(trainCritic.Graph(),
		G.BindDualValues(trainCritic.Learnables()...))
	d.criticSolver = c.CriticSolver.Config.Create()

	// Actor learning graph: maximize Q(s, actor(s))
	trainActor, err := actor.MLP().CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training actor: %v",
			err)
	}
	d.trainActor = trainActor.(*network.MLP)
	d.actorCritic, err = trainCritic.CloneWithInputsTo(d.trainActor.Input(),
		d.trainActor.Prediction(), "actorCritic")
	if err != nil {
		return nil, fmt.Errorf("new: could not add critic to actor graph: %v",
			err)
	}
	actorCost := G.Must(G.Mean(d.actorCritic.Prediction()))
	actorCost = G.Must(G.Neg(actorCost))
	G.Read(actorCost, &d.actorLoss)

	if _, err := G.Grad(actorCost, d.trainActor.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute actor gradient: %v",
			err)
	}
	d.actorVM = G.NewTapeMachine(d.trainActor.Graph(),
		G.BindDualValues(d.trainActor.Learnables()...))
	d.actorSolver = c.ActorSolver.Config.Create()

	// Target networks share a single graph, the target critic evaluates
	// the target actor's actions
	targetActor, err := actor.MLP().CloneWithBatch(batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target actor: %v", err)
	}
	d.targetActor = targetActor.(*network.MLP)
	d.targetCritic, err = trainCritic.CloneWithInputsTo(
		d.targetActor.Input(), d.targetActor.Prediction(), "targetCritic")
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %v",
			err)
	}
	d.targetVM = G.NewTapeMachine(d.targetActor.Graph())

	d.replay, err = c.ExpReplay.Create(features, actionDims, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create experience replay "+
			"buffer: %v", err)
	}

	return d, nil
}

// SelectAction returns the action of the behaviour policy at t
func (d *DDPG) SelectAction(t ts.TimeStep) (*mat.VecDense, error) {
	return d.behaviour.SelectAction(t)
}

// Perturb adds the behaviour policy's exploration noise to actions in
// place
func (d *DDPG) Perturb(actions []float64) {
	d.behaviour.Perturb(actions)
}

// Epsilon returns the current scale of the exploration noise
func (d *DDPG) Epsilon() float64 {
	return d.behaviour.Epsilon()
}

// Eval sets the agent to evaluation mode, where actions are not
// perturbed
func (d *DDPG) Eval() { d.behaviour.Eval() }

// Train sets the agent to training mode
func (d *DDPG) Train() { d.behaviour.Train() }

// IsEval returns whether the agent is in evaluation mode
func (d *DDPG) IsEval() bool { return d.behaviour.IsEval() }

// ReplayLen returns the number of transitions stored by the agent
func (d *DDPG) ReplayLen() int {
	return d.replay.Len()
}

// ObserveFirst observes and records the first episodic timestep
func (d *DDPG) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observeFirst: timestep %v is not the first "+
			"timestep of an episode", t.Number)
	}
	d.prevStep = t
	return nil
}

// Observe records the transition from the previously observed
// timestep to nextStep, caused by action
func (d *DDPG) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if d.prevStep.Observation == nil {
		return fmt.Errorf("observe: no previous timestep, ObserveFirst " +
			"must be called at the start of each episode")
	}
	if action.Len() != 1 {
		return fmt.Errorf("observe: actions must be 1-dimensional")
	}

	transition := ts.NewTransition(d.prevStep, mat.VecDenseCopyOf(action),
		nextStep)
	if err := d.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: %v", err)
	}

	d.prevStep = nextStep
	return nil
}

// EndEpisode clears the previous timestep so that the next episode
// must start with ObserveFirst
func (d *DDPG) EndEpisode() {
	d.prevStep = ts.TimeStep{}
}

// Step performs one update of the critic, actor, and target networks
// using a batch sampled from the replay buffer. If the buffer holds
// fewer transitions than the batch size, no update is performed. If the
// critic's loss is not finite, neither network nor target is updated.
func (d *DDPG) Step() (agent.Update, error) {
	batch, err := d.replay.Sample(d.batchSize)
	if expreplay.IsNotReady(err) {
		return agent.Update{}, nil
	} else if err != nil {
		return agent.Update{}, fmt.Errorf("step: %v", err)
	}

	targets, err := d.updateTargets(batch)
	if err != nil {
		return agent.Update{}, fmt.Errorf("step: %v", err)
	}

	criticLoss, q, criticLearned, err := d.criticStep(batch, targets)
	if err != nil {
		return agent.Update{}, fmt.Errorf("step: %v", err)
	}

	// The actor is only trained against a critic which was just updated
	if !criticLearned {
		return agent.Update{QValue: q}, nil
	}

	actorLoss, actorLearned, err := d.actorStep(batch)
	if err != nil {
		return agent.Update{}, fmt.Errorf("step: %v", err)
	}

	if err := d.targetActor.Polyak(d.trainActor, d.tau); err != nil {
		return agent.Update{}, fmt.Errorf("step: target actor: %v", err)
	}
	if err := d.targetCritic.Polyak(d.trainCritic, d.tau); err != nil {
		return agent.Update{}, fmt.Errorf("step: target critic: %v", err)
	}
	if err := d.actor.MLP().Set(d.trainActor); err != nil {
		return agent.Update{}, fmt.Errorf("step: behaviour actor: %v", err)
	}

	update := agent.Update{
		Learned:    actorLearned,
		CriticLoss: criticLoss,
		ActorLoss:  actorLoss,
		QValue:     q,
	}
	if update.Learned {
		d.behaviour.Decay()
	}
	return update, nil
}

// updateTargets computes r + γ * (1 - terminal) * Q'(s', actor'(s'))
// for each transition in the batch
func (d *DDPG) updateTargets(b expreplay.Batch) ([]float64, error) {
	if err := d.targetActor.SetInput(b.NextState); err != nil {
		return nil, fmt.Errorf("updateTargets: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("updateTargets: could not run target "+
			"networks: %v", err)
	}
	defer d.targetVM.Reset()

	nextQ, err := network.Float64s(d.targetCritic.Output())
	if err != nil {
		return nil, fmt.Errorf("updateTargets: %v", err)
	}

	targets := make([]float64, b.Size)
	for i := range targets {
		notTerminal := 1.0
		if b.Terminal[i] {
			notTerminal = 0.0
		}
		targets[i] = b.Reward[i] + d.gamma*notTerminal*nextQ[i]
	}
	return targets, nil
}

// criticStep performs one gradient step on the critic's MSE loss. The
// loss and batch mean action value before the step are returned, along
// with whether the weights were changed.
func (d *DDPG) criticStep(b expreplay.Batch, targets []float64) (float64,
	float64, bool, error) {
	if err := d.trainCritic.SetInputs(b.State, b.Action); err != nil {
		return 0, 0, false, fmt.Errorf("criticStep: %v", err)
	}
	targetTensor := tensor.New(
		tensor.WithShape(b.Size, 1),
		tensor.WithBacking(targets),
	)
	if err := G.Let(d.criticTargets, targetTensor); err != nil {
		return 0, 0, false, fmt.Errorf("criticStep: could not set update "+
			"targets: %v", err)
	}

	loss, learned, err := gradStep(d.criticVM, d.criticSolver,
		d.trainCritic.Model(), &d.criticLoss)
	if err != nil {
		return 0, 0, false, fmt.Errorf("criticStep: %v", err)
	}

	q, err := network.Scalar(d.meanQ)
	if err != nil {
		return 0, 0, false, fmt.Errorf("criticStep: %v", err)
	}
	if !floatutils.Finite(q) {
		q = 0
	}
	return loss, q, learned, nil
}

// actorStep performs one gradient step on the actor, moving its
// actions in the direction which increases the critic's action values
func (d *DDPG) actorStep(b expreplay.Batch) (float64, bool, error) {
	if err := d.actorCritic.Set(d.trainCritic); err != nil {
		return 0, false, fmt.Errorf("actorStep: %v", err)
	}
	if err := d.trainActor.SetInput(b.State); err != nil {
		return 0, false, fmt.Errorf("actorStep: %v", err)
	}

	loss, learned, err := gradStep(d.actorVM, d.actorSolver,
		d.trainActor.Model(), &d.actorLoss)
	if err != nil {
		return 0, false, fmt.Errorf("actorStep: %v", err)
	}
	return loss, learned, nil
}

// gradStep runs vm, reads the scalar loss, and steps the solver on
// model. The solver is not stepped when the loss is not finite, in
// which case a loss of 0 is returned.
func gradStep(vm G.VM, solver G.Solver, model []G.ValueGrad,
	lossVal *G.Value) (float64, bool, error) {
	if err := vm.RunAll(); err != nil {
		return 0, false, fmt.Errorf("gradStep: could not run graph: %v", err)
	}
	defer vm.Reset()

	loss, err := network.Scalar(*lossVal)
	if err != nil {
		return 0, false, fmt.Errorf("gradStep: %v", err)
	}
	if !floatutils.Finite(loss) {
		return 0, false, nil
	}

	if err := solver.Step(model); err != nil {
		return 0, false, fmt.Errorf("gradStep: could not step solver: %v",
			err)
	}
	return loss, true, nil
}

// Close releases the resources held by the agent's VMs
func (d *DDPG) Close() error {
	for _, closer := range []interface{ Close() error }{
		d.actor, d.criticVM, d.actorVM, d.targetVM,
	} {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
	}
	return nil
}
