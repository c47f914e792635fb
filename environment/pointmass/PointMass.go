// Package pointmass implements a 1-dimensional point-mass environment in
// which an agent pushes a mass along a line towards a target position.
package pointmass

import (
	"fmt"
	"math"

	env "github.com/samuelfneumann/pointmass/environment"
	ts "github.com/samuelfneumann/pointmass/timestep"
	"github.com/samuelfneumann/pointmass/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

const (
	Drag          float64 = 0.92 // Fraction of velocity kept each step
	Authority     float64 = 0.1  // Velocity change from a unit action
	PositionScale float64 = 2.5
	VelocityScale float64 = 1.0
	PositionLimit float64 = 2.8 // Episodes end past |position| > PositionLimit
	StartBound    float64 = 0.9 // Positions and targets start in [-StartBound, StartBound]

	MinAction float64 = -1.0
	MaxAction float64 = 1.0

	ObservationDims int = 3
	ActionDims      int = 1
)

// SimState is the full physical state of the point-mass
type SimState struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Target   float64 `json:"target"`
}

// Distance returns the distance between the mass and the target
func (s SimState) Distance() float64 {
	return math.Abs(s.Target - s.Position)
}

func (s SimState) String() string {
	return fmt.Sprintf("Position: %.4f  |  Velocity: %.4f  |  Target: %.4f",
		s.Position, s.Velocity, s.Target)
}

// Observe returns the observation of a state:
//
//	[position / PositionScale, velocity / VelocityScale,
//		(target - position) / PositionScale]
func Observe(s SimState) *mat.VecDense {
	return mat.NewVecDense(ObservationDims, []float64{
		s.Position / PositionScale,
		s.Velocity / VelocityScale,
		(s.Target - s.Position) / PositionScale,
	})
}

// NextState returns the state reached from s after applying force.
// The new velocity depends only on the current velocity and the force.
func NextState(s SimState, force float64) SimState {
	velocity := s.Velocity*Drag + force*Authority
	return SimState{
		Position: s.Position + velocity,
		Velocity: velocity,
		Target:   s.Target,
	}
}

// PointMass implements the point-mass environment. The agent applies a
// force in [MinAction, MaxAction] to a mass which slides along a line
// with drag. Rewards and episode termination are determined by the
// Reach Task.
//
// PointMass implements the environment.Environment interface
type PointMass struct {
	*Reach
	state    SimState
	lastStep ts.TimeStep
	discount float64
}

// New creates a new PointMass environment with the argument task,
// returning the environment and its first TimeStep
func New(t *Reach, discount float64) (*PointMass, ts.TimeStep, error) {
	if t == nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: task cannot be nil")
	}
	if discount < 0 || discount > 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: discount %v ∉ [0, 1]",
			discount)
	}

	p := &PointMass{Reach: t, discount: discount}
	firstStep, err := p.reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	return p, firstStep, nil
}

// Reset resets the environment and returns a starting TimeStep whose
// position and target are drawn from the Task's Starter. The velocity
// of the mass is always 0 at the start of an episode.
func (p *PointMass) Reset() ts.TimeStep {
	step, err := p.reset()
	if err != nil {
		// The starter was validated on construction
		panic(fmt.Sprintf("reset: %v", err))
	}
	return step
}

func (p *PointMass) reset() (ts.TimeStep, error) {
	state, err := p.Start()
	if err != nil {
		return ts.TimeStep{}, err
	}

	p.state = state
	p.lastStep = ts.New(ts.First, 0, p.discount, Observe(state), 0)

	return p.lastStep, nil
}

// Step takes one environmental step given action a and returns the next
// timestep as a timestep.TimeStep and a bool indicating whether or not
// the episode has ended. Actions are 1-dimensional and continuous,
// consisting of the force to apply to the mass. Actions outside the
// legal range of [-1, 1] are clipped to stay within this range.
func (p *PointMass) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: actions should be "+
			"%v-dimensional", ActionDims)
	}

	force := floatutils.Clip(a.AtVec(0), MinAction, MaxAction)
	nextState := NextState(p.state, force)

	nextStep, last := p.update(nextState)
	return nextStep, last, nil
}

// update changes the current state to nextState, calculating the reward
// and determining whether the episode has ended
func (p *PointMass) update(nextState SimState) (ts.TimeStep, bool) {
	reward := p.GetReward(nextState)
	nextStep := ts.New(ts.Mid, reward, p.discount, Observe(nextState),
		p.lastStep.Number+1)

	p.End(&nextStep, nextState)

	p.state = nextState
	p.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// State returns the current physical state of the environment
func (p *PointMass) State() SimState {
	return p.state
}

// LastTimeStep returns the last TimeStep that occurred in the
// environment
func (p *PointMass) LastTimeStep() ts.TimeStep {
	return p.lastStep
}

// ObservationSpec returns the observation specification of the
// environment
func (p *PointMass) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	maxOffset := (PositionLimit + StartBound) / PositionScale
	lowerBound := mat.NewVecDense(ObservationDims, []float64{
		-PositionLimit / PositionScale, math.Inf(-1), -maxOffset})
	upperBound := mat.NewVecDense(ObservationDims, []float64{
		PositionLimit / PositionScale, math.Inf(1), maxOffset})

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (p *PointMass) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{MinAction})
	upperBound := mat.NewVecDense(ActionDims, []float64{MaxAction})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Continuous)
}

// DiscountSpec returns the discounting specification of the environment
func (p *PointMass) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{p.discount})
	upperBound := mat.NewVecDense(1, []float64{p.discount})

	return env.NewSpec(shape, env.Discount, lowerBound, upperBound,
		env.Continuous)
}

// String returns a string representation of the environment
func (p *PointMass) String() string {
	return "PointMass  |  " + p.state.String()
}
