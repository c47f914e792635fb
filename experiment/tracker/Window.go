package tracker

import (
	"sync"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
)

// Window retains the most recent metrics of a run and the latest state
// of the environment. Window is safe for concurrent use, so that its
// contents can be read while an experiment is running.
type Window struct {
	mu      sync.RWMutex
	size    int
	metrics []metric.Metric
	state   pointmass.SimState
	runID   string
}

// NewWindow returns a new Window which retains the last size metrics
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, metrics: make([]metric.Metric, 0, size)}
}

// Track adds m to the window, dropping the oldest metric if full
func (w *Window) Track(m metric.Metric, s pointmass.SimState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.metrics) == w.size {
		copy(w.metrics, w.metrics[1:])
		w.metrics = w.metrics[:w.size-1]
	}
	w.metrics = append(w.metrics, m)
	w.state = s
}

// Reset clears the window at the start of a new run
func (w *Window) Reset(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics = w.metrics[:0]
	w.state = pointmass.SimState{}
	w.runID = runID
}

// Metrics returns a copy of the last n metrics in step order. If n <= 0
// all retained metrics are returned.
func (w *Window) Metrics(n int) []metric.Metric {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n <= 0 {
		n = len(w.metrics)
	}
	return metric.Last(w.metrics, n)
}

// Latest returns the most recent metric, if any
func (w *Window) Latest() (metric.Metric, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.metrics) == 0 {
		return metric.Metric{}, false
	}
	return w.metrics[len(w.metrics)-1], true
}

// State returns the latest tracked state of the environment
func (w *Window) State() pointmass.SimState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// RunID returns the ID of the run the window holds metrics for
func (w *Window) RunID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runID
}
