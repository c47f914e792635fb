package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

// Report is the most recent advice received by a Dispatcher
type Report struct {
	Text   string `json:"text"`
	RunID  string `json:"runID"`
	Step   int    `json:"step"` // Last step of the advised window
	Failed bool   `json:"failed"`
}

// Dispatcher is a Tracker which asks an Advisor for advice on the last
// WindowSize metrics every few steps. Advisors are called on their own
// goroutine, so a slow or failing Advisor never delays training. While
// a request is in flight, further requests are skipped.
type Dispatcher struct {
	advisor Advisor
	every   int
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	window   []metric.Metric
	runID    string
	inFlight bool
	report   Report
	wg       sync.WaitGroup
}

// NewDispatcher returns a new Dispatcher which asks a for advice every
// every steps, cancelling requests after timeout
func NewDispatcher(a Advisor, every int, timeout time.Duration,
	logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		advisor: a,
		every:   every,
		timeout: timeout,
		logger:  logger,
		window:  make([]metric.Metric, 0, WindowSize),
	}
}

// Track adds m to the metric window and dispatches a request for
// advice if m falls on the request interval
func (d *Dispatcher) Track(m metric.Metric, _ pointmass.SimState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.window) == WindowSize {
		copy(d.window, d.window[1:])
		d.window = d.window[:WindowSize-1]
	}
	d.window = append(d.window, m)

	if d.every <= 0 || m.Step%d.every != 0 || d.inFlight {
		return
	}

	snapshot := metric.Last(d.window, WindowSize)
	d.inFlight = true
	d.wg.Add(1)
	go d.advise(snapshot, d.runID)
}

// advise requests advice on metrics and stores the report, or the
// Fallback report if the Advisor fails or panics
func (d *Dispatcher) advise(metrics []metric.Metric, runID string) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	text, err := d.call(ctx, metrics)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight = false

	// Advice on a run which has since been reset is stale
	if runID != d.runID {
		return
	}

	report := Report{
		Text:  text,
		RunID: runID,
		Step:  metrics[len(metrics)-1].Step,
	}
	if err != nil {
		d.logger.Warn("advisor failed", zap.String("run", runID),
			zap.Int("step", report.Step), zap.Error(err))
		report.Text = Fallback
		report.Failed = true
	}
	d.report = report
}

// call calls the Advisor, returning a panic in the Advisor as an error
func (d *Dispatcher) call(ctx context.Context,
	metrics []metric.Metric) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("advisor panicked: %v", p)
		}
	}()
	return d.advisor.Advise(ctx, metrics)
}

// Reset discards the metric window and report at the start of a new
// run
func (d *Dispatcher) Reset(runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = d.window[:0]
	d.runID = runID
	d.report = Report{}
}

// Report returns the most recent report and whether any report has been
// received in the current run
func (d *Dispatcher) Report() (Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report, d.report.Text != ""
}

// Wait blocks until all in-flight requests have finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
