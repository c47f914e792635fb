package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
)

// Return tracks and saves the episodic return in an experiment. The
// reward of each tick is accumulated until a tick ends the episode, at
// which point the episode's return is stored.
//
// Note: An episode must finish for this Tracker to save its data.
// If the last episode in an experiment does not finish, that episode's
// return will not be saved.
type Return struct {
	mu             sync.Mutex
	lastStep       int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker which saves to
// filename
func NewReturn(filename string) *Return {
	return &Return{filename: filename}
}

// Track tracks the reward seen on a tick. Track panics if it is called
// for non-sequential steps.
func (r *Return) Track(m metric.Metric, _ pointmass.SimState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastStep+1 != m.Step {
		msg := fmt.Sprintf("track: last two steps tracked are not "+
			"sequential: step %v --> step %v were tracked", r.lastStep,
			m.Step)
		panic(msg)
	}
	r.lastStep = m.Step

	r.currentReturn += m.Reward
	if m.Terminal {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
	}
}

// Reset discards all returns at the start of a new run
func (r *Return) Reset(string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastStep = 0
	r.currentReturn = 0
	r.episodeReturns = nil
}

// Returns returns a copy of the returns of all finished episodes
func (r *Return) Returns() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	returns := make([]float64, len(r.episodeReturns))
	copy(returns, r.episodeReturns)
	return returns
}

// Save saves the episodic returns to disk with gob encoding
func (r *Return) Save() error {
	returns := r.Returns()

	file, err := os.Create(r.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(returns); err != nil {
		return fmt.Errorf("save: could not encode return data: %v", err)
	}
	return nil
}
