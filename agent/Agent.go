// Package agent defines an agent interface
package agent

import (
	"fmt"

	"github.com/samuelfneumann/pointmass/network"
	"github.com/samuelfneumann/pointmass/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Update summarises a single call to Learner.Step
type Update struct {
	// Learned is true if every network was updated. A skipped update
	// reports a loss of 0 for each network that was not stepped, but a
	// critic may still have been stepped when only the actor's loss was
	// not finite.
	Learned bool

	CriticLoss float64
	ActorLoss  float64

	// QValue is the mean action value of the sampled batch predicted
	// by the critic
	QValue float64
}

func (u Update) String() string {
	return fmt.Sprintf("Update | Learned: %v | Critic Loss: %.5f | Actor "+
		"Loss: %.5f | Q: %.5f", u.Learned, u.CriticLoss, u.ActorLoss,
		u.QValue)
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner. An update which
	// cannot yet be performed, such as when too little data has been
	// observed, is not an error and returns an Update with Learned
	// false.
	Step() (Update, error)

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextStep timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. For a given agent, the
// Policy and Learner should have pointers to the same weights so that
// any changes the learner makes to the weights are reflected in the
// actions the Policy chooses
type Policy interface {
	SelectAction(t timestep.TimeStep) (*mat.VecDense, error)
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// NNPolicy represents a policy that uses neural network function
// approximation.
type NNPolicy interface {
	Policy
	Network() network.NeuralNet
	Close() error
}

// Explorer is a Policy whose exploration decays over time
type Explorer interface {
	Policy

	// Epsilon returns the current exploration scale
	Epsilon() float64

	// Decay decays the exploration scale once
	Decay()
}

// A Closer is an agent that must be closed after it is done learning
type Closer interface {
	Agent
	Close() error
}
