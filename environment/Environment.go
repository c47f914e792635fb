// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"github.com/samuelfneumann/pointmass/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes should be ended. Ender's End method
// modifies the argument TimeStep so that it is marked as the last
// TimeStep of the episode when appropriate.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment which includes some
// Task to complete
type Environment interface {
	Reset() timestep.TimeStep // Resets between episodes
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)
	LastTimeStep() timestep.TimeStep

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
