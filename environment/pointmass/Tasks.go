package pointmass

import (
	"fmt"
	"math"

	env "github.com/samuelfneumann/pointmass/environment"
	ts "github.com/samuelfneumann/pointmass/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	MinReward       float64 = -2.0
	ProximityRadius float64 = 0.1
	ProximityBonus  float64 = 0.5
	GoalRadius      float64 = 0.05
	GoalBonus       float64 = 1.0
)

// Reach implements the task of pushing the mass to the target.
//
// Rewards are the negative distance to the target, bounded below by
// MinReward. A bonus of ProximityBonus is added when the mass ends a
// step within ProximityRadius of the target, and a further GoalBonus is
// added within GoalRadius.
//
// Episodes end in a terminal state when the mass reaches the goal
// radius or leaves [-PositionLimit, PositionLimit]. An optional step
// limit cuts episodes off without marking them terminal.
type Reach struct {
	starter   env.Starter
	stepEnder env.StepLimit
}

// NewReach creates a new Reach task. The Starter must sample
// 2-dimensional vectors of [position, target]. If episodeSteps <= 0,
// episodes are never cut off.
func NewReach(s env.Starter, episodeSteps int) *Reach {
	return &Reach{
		starter:   s,
		stepEnder: env.NewStepLimit(episodeSteps),
	}
}

// NewDefaultReach returns a Reach task which draws positions and
// targets independently and uniformly from [-StartBound, StartBound]
func NewDefaultReach(seed uint64, episodeSteps int) *Reach {
	bounds := []r1.Interval{
		{Min: -StartBound, Max: StartBound},
		{Min: -StartBound, Max: StartBound},
	}
	return NewReach(env.NewUniformStarter(bounds, seed), episodeSteps)
}

// Start samples a starting state with 0 velocity
func (r *Reach) Start() (SimState, error) {
	start := r.starter.Start()
	if start.Len() != 2 {
		return SimState{}, fmt.Errorf("start: starter should sample "+
			"[position, target] but got %v features", start.Len())
	}

	return SimState{Position: start.AtVec(0), Target: start.AtVec(1)}, nil
}

// GetReward returns the reward for ending a step in state next
func (r *Reach) GetReward(next SimState) float64 {
	distance := next.Distance()
	reward := math.Max(MinReward, -distance)

	if distance < ProximityRadius {
		reward += ProximityBonus
	}
	if distance < GoalRadius {
		reward += GoalBonus
	}
	return reward
}

// AtGoal returns whether the mass is within the goal radius
func (r *Reach) AtGoal(s SimState) bool {
	return s.Distance() < GoalRadius
}

// OutOfBounds returns whether the mass has left the legal positions
func (r *Reach) OutOfBounds(s SimState) bool {
	return math.Abs(s.Position) > PositionLimit
}

// End determines if t, which transitions into state next, is the last
// TimeStep in the episode. If so, it changes the TimeStep's StepType
// to timestep.Last and records why the episode ended.
func (r *Reach) End(t *ts.TimeStep, next SimState) bool {
	if r.AtGoal(next) || r.OutOfBounds(next) {
		t.StepType = ts.Last
		t.SetEnd(ts.TerminalStateReached)
		return true
	}

	return r.stepEnder.End(t)
}

// Min returns the minimum attainable reward over all timesteps
func (r *Reach) Min() float64 { return MinReward }

// Max returns the maximum attainable reward over all timesteps
func (r *Reach) Max() float64 { return ProximityBonus + GoalBonus }

// RewardSpec returns the reward specification of the Task
func (r *Reach) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{r.Min()})
	upperBound := mat.NewVecDense(1, []float64{r.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
