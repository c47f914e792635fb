package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samuelfneumann/pointmass/advisor"
	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/experiment"
	"github.com/samuelfneumann/pointmass/experiment/tracker"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

func newServer(t *testing.T) (*Server, *experiment.Runner) {
	t.Helper()

	c := experiment.DefaultConfig()
	c.TickIntervalMs = 1
	c.Agent.ActorLayers = []int{16, 16}
	c.Agent.CriticLayers = []int{16, 16}

	session, err := experiment.NewSession(c)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	window := tracker.NewWindow(c.WindowSize)
	runner := experiment.NewRunner(session, zap.NewNop(), window)
	t.Cleanup(runner.Stop)

	return New(runner, window, nil, zap.NewNop()), runner
}

func do(t *testing.T, s *Server, method, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%v %v: could not decode %q: %v", method, path,
				rec.Body.String(), err)
		}
	}
	return rec.Code
}

type metricsResponse struct {
	RunID   string          `json:"runID"`
	Metrics []metric.Metric `json:"metrics"`
}

func TestLifecycle(t *testing.T) {
	s, runner := newServer(t)

	var status experiment.Status
	if code := do(t, s, http.MethodGet, "/status", &status); code != 200 {
		t.Fatalf("status: code %v", code)
	}
	if status.State != experiment.Idle || status.Step != 0 {
		t.Errorf("initial status: %+v", status)
	}

	if code := do(t, s, http.MethodPost, "/start", &status); code != 200 {
		t.Fatalf("start: code %v", code)
	}
	if status.State != experiment.Running {
		t.Errorf("state after start: %v", status.State)
	}

	deadline := time.Now().Add(10 * time.Second)
	for runner.Status().Step < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("runner did not tick")
		}
		time.Sleep(time.Millisecond)
	}

	if code := do(t, s, http.MethodPost, "/stop", &status); code != 200 {
		t.Fatalf("stop: code %v", code)
	}
	if status.State != experiment.Idle {
		t.Errorf("state after stop: %v", status.State)
	}

	var metrics metricsResponse
	if code := do(t, s, http.MethodGet, "/metrics?n=3", &metrics); code != 200 {
		t.Fatalf("metrics: code %v", code)
	}
	if len(metrics.Metrics) != 3 {
		t.Fatalf("metrics: want(3) have(%v)", len(metrics.Metrics))
	}
	if last := metrics.Metrics[2]; last.Step != status.Step {
		t.Errorf("last metric step: want(%v) have(%v)", status.Step, last.Step)
	}
	if metrics.RunID != status.RunID {
		t.Errorf("metrics run: want(%v) have(%v)", status.RunID,
			metrics.RunID)
	}

	var state struct {
		State    pointmass.SimState `json:"state"`
		Distance float64            `json:"distance"`
	}
	if code := do(t, s, http.MethodGet, "/state", &state); code != 200 {
		t.Fatalf("state: code %v", code)
	}
	if state.State != runner.SimState() {
		t.Errorf("state: want(%v) have(%v)", runner.SimState(), state.State)
	}

	runID := status.RunID
	if code := do(t, s, http.MethodPost, "/reset", &status); code != 200 {
		t.Fatalf("reset: code %v", code)
	}
	if status.Step != 0 || status.RunID == runID {
		t.Errorf("status after reset: %+v", status)
	}
	do(t, s, http.MethodGet, "/metrics", &metrics)
	if len(metrics.Metrics) != 0 {
		t.Errorf("metrics after reset: %v", metrics.Metrics)
	}
}

func TestBadMetricsQuery(t *testing.T) {
	s, _ := newServer(t)
	for _, path := range []string{"/metrics?n=abc", "/metrics?n=-1"} {
		if code := do(t, s, http.MethodGet, path, nil); code != 400 {
			t.Errorf("%v: want code 400 have %v", path, code)
		}
	}
}

func TestAdvice(t *testing.T) {
	s, _ := newServer(t)
	if code := do(t, s, http.MethodGet, "/advice", nil); code != 404 {
		t.Errorf("advice without advisor: want code 404 have %v", code)
	}

	d := advisor.NewDispatcher(advisor.NewSummary(), 1, time.Second,
		zap.NewNop())
	s.advice = d
	d.Track(metric.Metric{Step: 1}, pointmass.SimState{})
	d.Wait()

	var resp struct {
		Available bool           `json:"available"`
		Report    advisor.Report `json:"report"`
	}
	if code := do(t, s, http.MethodGet, "/advice", &resp); code != 200 {
		t.Fatalf("advice: code %v", code)
	}
	if !resp.Available || resp.Report.Text == "" || resp.Report.Failed {
		t.Errorf("advice: %+v", resp)
	}
}

type failingController struct {
	status experiment.Status
}

func (f *failingController) Start()                       {}
func (f *failingController) Stop()                        {}
func (f *failingController) Reset() error                 { return errors.New("boom") }
func (f *failingController) Status() experiment.Status    { return f.status }
func (f *failingController) SimState() pointmass.SimState { return pointmass.SimState{} }

func TestResetFailure(t *testing.T) {
	s := New(&failingController{}, tracker.NewWindow(1), nil, zap.NewNop())
	if code := do(t, s, http.MethodPost, "/reset", nil); code != 500 {
		t.Errorf("reset: want code 500 have %v", code)
	}
}
