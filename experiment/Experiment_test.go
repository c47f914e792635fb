package experiment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/experiment/tracker"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

func testConfig() Config {
	c := DefaultConfig()
	c.TickIntervalMs = 0
	c.Agent.ActorLayers = []int{16, 16}
	c.Agent.CriticLayers = []int{16, 16}
	return c
}

func newSession(t *testing.T, c Config) *Session {
	t.Helper()
	s, err := NewSession(c)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func tick(t *testing.T, s *Session) metric.Metric {
	t.Helper()
	m, _, err := s.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return m
}

func TestSessionLearnsOnceBatchAvailable(t *testing.T) {
	c := testConfig()
	c.WarmupSteps = 0
	s := newSession(t, c)

	for i := 1; i < c.Agent.BatchSize(); i++ {
		m := tick(t, s)
		if m.Step != i {
			t.Fatalf("step: want(%v) have(%v)", i, m.Step)
		}
		if m.Learned || m.CriticLoss != 0 || m.ActorLoss != 0 ||
			m.QValue != 0 {
			t.Fatalf("step %v learned before a batch was available: %v", i,
				m)
		}
		if m.Epsilon != c.Agent.EpsilonStart {
			t.Fatalf("step %v: epsilon decayed without learning", i)
		}
	}

	m := tick(t, s)
	if !m.Learned {
		t.Fatalf("step %v did not learn: %v", m.Step, m)
	}
	if m.Epsilon != c.Agent.EpsilonStart*c.Agent.EpsilonDecay {
		t.Errorf("epsilon: want(%v) have(%v)",
			c.Agent.EpsilonStart*c.Agent.EpsilonDecay, m.Epsilon)
	}
}

func TestSessionWarmup(t *testing.T) {
	c := testConfig()
	c.WarmupSteps = 100
	s := newSession(t, c)

	for i := 0; i < c.WarmupSteps; i++ {
		if m := tick(t, s); m.Learned {
			t.Fatalf("learned during warmup at step %v", m.Step)
		}
	}
	if m := tick(t, s); !m.Learned {
		t.Errorf("did not learn after warmup at step %v", m.Step)
	}
}

func TestSessionEpisodes(t *testing.T) {
	c := testConfig()
	c.EpisodeCutoff = 5
	s := newSession(t, c)

	episodes, length := 0, 0
	for i := 0; i < 40; i++ {
		m := tick(t, s)
		length++
		if m.Episode != episodes {
			t.Fatalf("step %v: want episode %v have %v", m.Step, episodes,
				m.Episode)
		}
		if length > c.EpisodeCutoff {
			t.Fatalf("episode %v longer than cutoff", episodes)
		}
		if m.Terminal {
			episodes++
			length = 0
		}
	}
	if episodes < 40/c.EpisodeCutoff {
		t.Errorf("episodes: want(>= %v) have(%v)", 40/c.EpisodeCutoff,
			episodes)
	}
	if s.Episode() != episodes {
		t.Errorf("session episodes: want(%v) have(%v)", episodes,
			s.Episode())
	}
}

func TestSessionReset(t *testing.T) {
	c := testConfig()
	c.WarmupSteps = 0
	s := newSession(t, c)
	for i := 0; i < 70; i++ {
		tick(t, s)
	}
	runID := s.RunID()

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Steps() != 0 || s.Episode() != 0 {
		t.Errorf("counters not zeroed: step %v episode %v", s.Steps(),
			s.Episode())
	}
	if s.RunID() == runID {
		t.Errorf("reset did not draw a new run ID")
	}
	if s.Epsilon() != c.Agent.EpsilonStart {
		t.Errorf("epsilon: want(%v) have(%v)", c.Agent.EpsilonStart,
			s.Epsilon())
	}

	// The replay buffer is empty again
	if m := tick(t, s); m.Learned || m.Step != 1 {
		t.Errorf("first step after reset: %v", m)
	}
}

func TestSessionStateBounds(t *testing.T) {
	s := newSession(t, testConfig())
	start := s.State()
	if start.Velocity != 0 ||
		start.Position < -pointmass.StartBound ||
		start.Position > pointmass.StartBound ||
		start.Target < -pointmass.StartBound ||
		start.Target > pointmass.StartBound {
		t.Errorf("invalid starting state %v", start)
	}
}

func newRunner(t *testing.T, c Config,
	trackers ...tracker.Tracker) *Runner {
	t.Helper()
	r := NewRunner(newSession(t, c), zap.NewNop(), trackers...)
	t.Cleanup(r.Stop)
	return r
}

func TestRunnerMaxSteps(t *testing.T) {
	c := testConfig()
	c.MaxSteps = 20
	window := tracker.NewWindow(100)
	r := newRunner(t, c, window)

	r.Start()
	if err := r.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if r.State() != Idle {
		t.Errorf("state: want(%v) have(%v)", Idle, r.State())
	}
	ms := window.Metrics(0)
	if len(ms) != c.MaxSteps {
		t.Fatalf("metrics: want(%v) have(%v)", c.MaxSteps, len(ms))
	}
	for i, m := range ms {
		if m.Step != i+1 {
			t.Fatalf("metric %v: want step %v have %v", i, i+1, m.Step)
		}
	}
	if status := r.Status(); status.Step != c.MaxSteps ||
		status.State != Idle {
		t.Errorf("status: %+v", status)
	}
	if window.RunID() != r.Status().RunID {
		t.Errorf("window was not told the run ID")
	}
}

// waitForStep polls r until it has taken at least step steps
func waitForStep(t *testing.T, r *Runner, step int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for r.Status().Step < step {
		if time.Now().After(deadline) {
			t.Fatalf("runner did not reach step %v", step)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunnerStartStop(t *testing.T) {
	c := testConfig()
	c.TickIntervalMs = 1
	r := newRunner(t, c)

	// Stopping an idle runner is a no-op
	r.Stop()
	if r.State() != Idle {
		t.Fatalf("state: want(%v) have(%v)", Idle, r.State())
	}

	r.Start()
	r.Start()
	if r.State() != Running {
		t.Fatalf("state: want(%v) have(%v)", Running, r.State())
	}
	waitForStep(t, r, 3)

	r.Stop()
	r.Stop()
	if r.State() != Idle {
		t.Fatalf("state: want(%v) have(%v)", Idle, r.State())
	}

	step := r.Status().Step
	time.Sleep(20 * time.Millisecond)
	if r.Status().Step != step {
		t.Errorf("runner ticked after stopping")
	}

	// Restarting continues the same run
	r.Start()
	waitForStep(t, r, step+1)
	r.Stop()
}

// cancelAt is a Tracker which stops its Runner while tracking step at
// and counts the steps tracked afterwards
type cancelAt struct {
	r     *Runner
	at    int
	after int
}

func (c *cancelAt) Track(m metric.Metric, _ pointmass.SimState) {
	if m.Step > c.at {
		c.after++
		return
	}
	if m.Step == c.at {
		// Stop cannot be called from within a tick, since it waits for
		// the tick to finish
		c.r.mu.Lock()
		cancel := c.r.cancel
		c.r.mu.Unlock()
		cancel()
	}
}

func TestRunnerStopDuringTick(t *testing.T) {
	c := testConfig()
	for i := 0; i < 20; i++ {
		r := newRunner(t, c)
		stop := &cancelAt{r: r, at: 3}
		r.Register(stop)

		r.Start()
		if err := r.Wait(); err != nil {
			t.Fatalf("wait: %v", err)
		}
		if stop.after != 0 {
			t.Fatalf("run %v: tracked %v steps after stopping", i,
				stop.after)
		}
		if step := r.Status().Step; step != stop.at {
			t.Fatalf("run %v: step want(%v) have(%v)", i, stop.at, step)
		}
		if r.State() != Idle {
			t.Fatalf("run %v: state want(%v) have(%v)", i, Idle, r.State())
		}
	}
}

func TestRunnerReset(t *testing.T) {
	c := testConfig()
	c.MaxSteps = 10
	window := tracker.NewWindow(100)
	r := newRunner(t, c, window)

	r.Start()
	if err := r.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	runID := r.Status().RunID

	if err := r.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	status := r.Status()
	if status.Step != 0 || status.State != Idle {
		t.Errorf("status after reset: %+v", status)
	}
	if status.RunID == runID {
		t.Errorf("reset did not start a new run")
	}
	if len(window.Metrics(0)) != 0 || window.RunID() != status.RunID {
		t.Errorf("window was not reset")
	}

	r.Start()
	if err := r.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ms := window.Metrics(0); len(ms) != c.MaxSteps || ms[0].Step != 1 {
		t.Errorf("metrics after reset: %v", ms)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.json")
	data := []byte(`{
		"WarmupSteps": 50,
		"MaxSteps": 1000,
		"Agent": {
			"Gamma": 0.9,
			"ActorSolver": {
				"Type": "Adam",
				"Config": {"StepSize": 0.001, "Epsilon": 1e-8,
					"Beta1": 0.9, "Beta2": 0.999, "Batch": 1, "Clip": 1}
			}
		}
	}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if c.WarmupSteps != 50 || c.MaxSteps != 1000 || c.Agent.Gamma != 0.9 {
		t.Errorf("loaded config: %+v", c)
	}
	if c.Agent.Tau != DefaultConfig().Agent.Tau {
		t.Errorf("missing fields should keep defaults: tau %v", c.Agent.Tau)
	}
	if c.Agent.ActorSolver.Type != "Adam" {
		t.Errorf("actor solver: %v", c.Agent.ActorSolver)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"WindowSize": 0}`), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Errorf("expected error loading invalid config")
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("expected error loading missing config")
	}
}
