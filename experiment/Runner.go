package experiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/experiment/tracker"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Runner
type State string

const (
	Idle    State = "IDLE"
	Running State = "RUNNING"
)

// Status summarises a Runner for readers which must not touch its
// Session
type Status struct {
	State   State   `json:"state"`
	RunID   string  `json:"runID"`
	Step    int     `json:"step"`
	Episode int     `json:"episode"`
	Epsilon float64 `json:"epsilon"`
	Error   string  `json:"error,omitempty"`
}

// Runner repeatedly ticks a Session on its own goroutine. The next tick
// is only scheduled once the previous tick has completed, so ticks
// never overlap. Each tick's metric and state are delivered to every
// registered Tracker in step order.
//
// Start, Stop, Reset and the read methods of a Runner are safe for
// concurrent use.
type Runner struct {
	session  *Session
	interval time.Duration
	maxSteps int
	logger   *zap.Logger

	mu       sync.Mutex
	trackers []tracker.Tracker
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	status   Status
	last     pointmass.SimState
	err      error
}

// NewRunner returns a new idle Runner for session. Ticks are spaced by
// the Session's tick interval, and the Runner stops on its own once the
// Session has taken its configured maximum number of steps. Trackers
// which are Resetters are told the ID of the Session's current run.
func NewRunner(session *Session, logger *zap.Logger,
	trackers ...tracker.Tracker) *Runner {
	c := session.Config()
	r := &Runner{
		session:  session,
		interval: c.TickInterval(),
		maxSteps: c.MaxSteps,
		logger:   logger,
		trackers: trackers,
		state:    Idle,
	}
	r.refresh()
	r.notifyReset()
	return r
}

// Register adds a Tracker which receives metrics from the next tick on
func (r *Runner) Register(t tracker.Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trackers = append(r.trackers, t)
	if resetter, ok := t.(tracker.Resetter); ok {
		resetter.Reset(r.status.RunID)
	}
}

// Start starts ticking. Start is a no-op if the Runner is already
// running.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = Running
	r.status.State = Running
	r.err = nil
	r.status.Error = ""

	r.logger.Info("runner started", zap.String("run", r.status.RunID),
		zap.Int("step", r.status.Step))
	go r.loop(ctx, r.done)
}

// Stop stops ticking and waits for the in-flight tick, if any, to
// finish. Stop is a no-op if the Runner is idle.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.state != Running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

// Reset stops the Runner, starts a new run of its Session and tells
// each Tracker which is a Resetter about the new run. The Runner is
// idle after Reset.
func (r *Runner) Reset() error {
	// Start may be called between Stop and acquiring the lock
	for {
		r.Stop()
		r.mu.Lock()
		if r.state == Idle {
			break
		}
		r.mu.Unlock()
	}
	defer r.mu.Unlock()

	if err := r.session.Reset(); err != nil {
		r.err = err
		r.status.Error = err.Error()
		return fmt.Errorf("reset: %v", err)
	}
	r.err = nil
	r.status.Error = ""
	r.refresh()
	r.notifyReset()

	r.logger.Info("runner reset", zap.String("run", r.status.RunID))
	return nil
}

// Wait blocks until the Runner is idle and returns the error which
// stopped it, if any
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	return r.Err()
}

// Err returns the error of the last failed tick or reset
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// State returns the current lifecycle state of the Runner
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns a snapshot of the Runner's progress
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SimState returns the environment state after the most recent tick
func (r *Runner) SimState() pointmass.SimState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// loop ticks the Session until ctx is cancelled, the step limit is
// reached, or a tick fails
func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		r.mu.Lock()
		r.state = Idle
		r.status.State = Idle
		r.cancel = nil
		r.mu.Unlock()
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	stopped := func() bool {
		if ctx.Err() == nil {
			return false
		}
		r.logger.Info("runner stopped", zap.Int("step", r.session.Steps()))
		return true
	}

	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		// Both cases may be ready at once, and select picks at random
		if stopped() {
			return
		}

		if err := r.tick(); err != nil {
			r.logger.Error("tick failed", zap.Int("step", r.session.Steps()),
				zap.Error(err))
			return
		}

		if r.maxSteps > 0 && r.session.Steps() >= r.maxSteps {
			r.logger.Info("step limit reached", zap.Int("step",
				r.session.Steps()))
			return
		}

		// Stop may have been called by a Tracker during the tick
		if stopped() {
			return
		}
		timer.Reset(r.interval)
	}
}

// tick runs a single tick of the Session and publishes its results
func (r *Runner) tick() error {
	m, state, err := r.session.Tick()
	if err != nil {
		r.mu.Lock()
		r.err = err
		r.status.Error = err.Error()
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.publish(m, state)
	trackers := r.trackers
	r.mu.Unlock()

	for _, t := range trackers {
		t.Track(m, state)
	}
	return nil
}

// publish records the results of a tick for readers. The caller must
// hold r.mu.
func (r *Runner) publish(m metric.Metric, state pointmass.SimState) {
	r.status.Step = m.Step
	r.status.Episode = r.session.Episode()
	r.status.Epsilon = m.Epsilon
	r.last = state
}

// refresh reads the status of an idle Session. The caller must hold
// r.mu unless the Runner is being constructed.
func (r *Runner) refresh() {
	r.status = Status{
		State:   r.state,
		RunID:   r.session.RunID(),
		Step:    r.session.Steps(),
		Episode: r.session.Episode(),
		Epsilon: r.session.Epsilon(),
	}
	r.last = r.session.State()
}

// notifyReset tells each Resetter about the Session's current run. The
// caller must hold r.mu unless the Runner is being constructed.
func (r *Runner) notifyReset() {
	for _, t := range r.trackers {
		if resetter, ok := t.(tracker.Resetter); ok {
			resetter.Reset(r.status.RunID)
		}
	}
}
