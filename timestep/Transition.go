package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single (s, a, r, s', terminal) tuple of experience.
// A Transition copies its vectors on construction and is never mutated
// afterwards.
type Transition struct {
	State     *mat.VecDense
	Action    *mat.VecDense
	Reward    float64
	Discount  float64
	NextState *mat.VecDense
	Terminal  bool
}

// NewTransition builds the Transition from step to nextStep taking
// action. The Terminal flag is set only when nextStep reached a
// terminal state.
func NewTransition(step TimeStep, action *mat.VecDense,
	nextStep TimeStep) Transition {
	return Transition{
		State:     cloneVec(step.Observation),
		Action:    cloneVec(action),
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		NextState: cloneVec(nextStep.Observation),
		Terminal:  nextStep.Terminal(),
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | State: %v | Action: %v | Reward: %.3f"+
		" | Next State: %v | Terminal: %v", mat.Formatted(t.State.T()),
		mat.Formatted(t.Action.T()), t.Reward,
		mat.Formatted(t.NextState.T()), t.Terminal)
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	out := mat.NewVecDense(v.Len(), nil)
	out.CloneFromVec(v)
	return out
}
