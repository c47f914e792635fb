// Package expreplay implements a bounded experience replay buffer
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/pointmass/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	MaxReplayCapacity int
	BatchSize         int
}

// DefaultConfig returns the Config of a buffer holding 10,000
// transitions and sampling batches of 64
func DefaultConfig() Config {
	return Config{MaxReplayCapacity: 10_000, BatchSize: 64}
}

// Validate returns an error if the Config cannot create a buffer
func (c Config) Validate() error {
	if c.MaxReplayCapacity < 1 {
		return fmt.Errorf("validate: max capacity must be > 0")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be > 0")
	}
	return nil
}

// Create creates and returns the ExperienceReplayer with the specified
// Config
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (*Ring, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %v", err)
	}
	return New(NewUniformSelector(seed), c.MaxReplayCapacity, featureSize,
		actionSize)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of n transitions from the buffer
	Sample(n int) (Batch, error)

	// Len returns the current number of transitions in the buffer
	Len() int

	// MaxCapacity returns the maximum allowable transitions in the
	// buffer
	MaxCapacity() int
}

// Batch is a batch of transitions sampled from a buffer. States,
// actions, and next states are stored row-major, one row per
// transition.
type Batch struct {
	Size        int
	FeatureSize int
	ActionSize  int

	State     []float64
	Action    []float64
	Reward    []float64
	Discount  []float64
	NextState []float64
	Terminal  []bool
}

func newBatch(size, featureSize, actionSize int) Batch {
	return Batch{
		Size:        size,
		FeatureSize: featureSize,
		ActionSize:  actionSize,
		State:       make([]float64, size*featureSize),
		Action:      make([]float64, size*actionSize),
		Reward:      make([]float64, size),
		Discount:    make([]float64, size),
		NextState:   make([]float64, size*featureSize),
		Terminal:    make([]bool, size),
	}
}

// copyInto copies elements from src into dest at the indices in the
// range [start, stop)
func copyInto(dest []float64, start, stop int, src []float64) {
	if len(src) != stop-start {
		panic(fmt.Sprintf("copyInto: cannot copy %v values into %v indices",
			len(src), stop-start))
	}
	copy(dest[start:stop], src)
}
