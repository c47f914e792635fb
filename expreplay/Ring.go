package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/pointmass/timestep"
	"gonum.org/v1/gonum/mat"
)

var _ ExperienceReplayer = &Ring{}

// Ring implements an ExperienceReplayer where transitions are stored in
// a fixed-size ring. Once full, each Add overwrites the oldest
// transition in the buffer.
//
// Ring is not safe for concurrent use.
type Ring struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64
	terminalCache  []bool

	currentInUsePos int
	isFull          bool

	// Outlines how data is sampled
	sampler Selector

	maxCapacity int
	featureSize int
	actionSize  int
}

// New returns a new Ring. The sampler parameter is a Selector which
// determines how data is sampled from the replay buffer. The
// featureSize and actionSize parameters define the size of the feature
// and action vectors.
func New(sampler Selector, maxCapacity, featureSize,
	actionSize int) (*Ring, error) {
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be > 0")
	}
	if featureSize < 1 || actionSize < 1 {
		return nil, fmt.Errorf("new: feature and action sizes must be > 0")
	}
	if sampler == nil {
		return nil, fmt.Errorf("new: sampler cannot be nil")
	}

	return &Ring{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),
		terminalCache:  make([]bool, maxCapacity),

		sampler: sampler,

		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the Ring
func (r *Ring) String() string {
	return fmt.Sprintf("Ring | Transitions: %v / %v  |  Next Index: %v",
		r.Len(), r.MaxCapacity(), r.currentInUsePos)
}

// Len returns the current number of transitions in the Ring that are
// available for sampling
func (r *Ring) Len() int {
	if r.isFull {
		return r.maxCapacity
	}
	return r.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the Ring
func (r *Ring) MaxCapacity() int {
	return r.maxCapacity
}

// Add adds a transition to the Ring, overwriting the oldest transition
// if the Ring is full
func (r *Ring) Add(t timestep.Transition) error {
	if t.State.Len() != r.featureSize || t.NextState.Len() != r.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			r.featureSize, t.State.Len())
	}
	if t.Action.Len() != r.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			r.actionSize, t.Action.Len())
	}

	index := r.currentInUsePos

	stateInd := index * r.featureSize
	copyInto(r.stateCache, stateInd, stateInd+r.featureSize,
		t.State.RawVector().Data)
	copyInto(r.nextStateCache, stateInd, stateInd+r.featureSize,
		t.NextState.RawVector().Data)

	actionInd := index * r.actionSize
	copyInto(r.actionCache, actionInd, actionInd+r.actionSize,
		t.Action.RawVector().Data)

	r.rewardCache[index] = t.Reward
	r.discountCache[index] = t.Discount
	r.terminalCache[index] = t.Terminal

	if index+1 == r.maxCapacity {
		r.isFull = true
	}
	r.currentInUsePos = (index + 1) % r.maxCapacity
	return nil
}

// Sample samples n transitions from the Ring. If the Ring holds fewer
// than n transitions, an *ExpReplayError is returned which reports
// insufficient samples.
func (r *Ring) Sample(n int) (Batch, error) {
	if n < 1 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errBatchSize}
	}
	if r.Len() == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if r.Len() < n {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := r.sampler.choose(n, r.Len())
	batch := newBatch(n, r.featureSize, r.actionSize)

	for i, index := range indices {
		batchInd := i * r.featureSize
		expInd := index * r.featureSize
		copyInto(batch.State, batchInd, batchInd+r.featureSize,
			r.stateCache[expInd:expInd+r.featureSize])
		copyInto(batch.NextState, batchInd, batchInd+r.featureSize,
			r.nextStateCache[expInd:expInd+r.featureSize])

		batchInd = i * r.actionSize
		expInd = index * r.actionSize
		copyInto(batch.Action, batchInd, batchInd+r.actionSize,
			r.actionCache[expInd:expInd+r.actionSize])

		batch.Reward[i] = r.rewardCache[index]
		batch.Discount[i] = r.discountCache[index]
		batch.Terminal[i] = r.terminalCache[index]
	}

	return batch, nil
}

// At returns the i-th oldest transition in the Ring
func (r *Ring) At(i int) (timestep.Transition, error) {
	if i < 0 || i >= r.Len() {
		return timestep.Transition{}, fmt.Errorf("at: index %v out of "+
			"range [0, %v)", i, r.Len())
	}

	index := i
	if r.isFull {
		index = (r.currentInUsePos + i) % r.maxCapacity
	}

	state := make([]float64, r.featureSize)
	nextState := make([]float64, r.featureSize)
	action := make([]float64, r.actionSize)
	copy(state, r.stateCache[index*r.featureSize:])
	copy(nextState, r.nextStateCache[index*r.featureSize:])
	copy(action, r.actionCache[index*r.actionSize:])

	return timestep.Transition{
		State:     mat.NewVecDense(r.featureSize, state),
		Action:    mat.NewVecDense(r.actionSize, action),
		Reward:    r.rewardCache[index],
		Discount:  r.discountCache[index],
		NextState: mat.NewVecDense(r.featureSize, nextState),
		Terminal:  r.terminalCache[index],
	}, nil
}
