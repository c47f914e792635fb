package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
)

func window(n int, learned bool, reward func(step int) float64) []metric.Metric {
	out := make([]metric.Metric, n)
	for i := range out {
		step := i + 1
		out[i] = metric.Metric{
			Step:       step,
			Reward:     reward(step),
			CriticLoss: 0.1,
			ActorLoss:  -0.2,
			Epsilon:    0.5,
			Learned:    learned,
		}
	}
	return out
}

func TestSummary(t *testing.T) {
	s := NewSummary()
	ctx := context.Background()

	if _, err := s.Advise(ctx, nil); err == nil {
		t.Errorf("expected error advising on no metrics")
	}

	report, err := s.Advise(ctx, window(25, false,
		func(int) float64 { return -0.5 }))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	for _, want := range []string{"warming up", "flat", "mean reward -0.500"} {
		if !strings.Contains(report, want) {
			t.Errorf("report %q does not contain %q", report, want)
		}
	}

	report, err = s.Advise(ctx, window(25, true,
		func(step int) float64 { return 0.1 * float64(step) }))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	for _, want := range []string{"improving", "critic loss 0.1000"} {
		if !strings.Contains(report, want) {
			t.Errorf("report %q does not contain %q", report, want)
		}
	}
}

func TestHTTPClient(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(Response{Report: "keep going"})
		}))
	defer server.Close()

	c := NewHTTPClient(server.URL, server.Client())
	report, err := c.Advise(context.Background(),
		window(3, true, func(int) float64 { return 1 }))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if report != "keep going" {
		t.Errorf("report: want(keep going) have(%v)", report)
	}
	if len(received.Metrics) != 3 || received.Metrics[2].Step != 3 {
		t.Errorf("server received %v", received.Metrics)
	}
}

func TestHTTPClientFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
	defer server.Close()

	c := NewHTTPClient(server.URL, server.Client())
	if _, err := c.Advise(context.Background(), nil); err == nil {
		t.Errorf("expected error from failing service")
	}
}

func track(d *Dispatcher, ms []metric.Metric) {
	for _, m := range ms {
		d.Track(m, pointmass.SimState{})
	}
}

func TestDispatcherReports(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	a := Func(func(_ context.Context, ms []metric.Metric) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(ms))
		return "ok", nil
	})

	d := NewDispatcher(a, 10, time.Second, zap.NewNop())
	d.Reset("run")
	if _, ok := d.Report(); ok {
		t.Errorf("expected no report before any request")
	}

	ms := window(40, true, func(int) float64 { return 0 })
	for _, m := range ms {
		d.Track(m, pointmass.SimState{})
		d.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{10, 20, 25, 25}
	if len(sizes) != len(want) {
		t.Fatalf("requests: want(%v) have(%v)", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("request %v: want %v metrics have %v", i, want[i],
				sizes[i])
		}
	}

	report, ok := d.Report()
	if !ok || report.Text != "ok" || report.Step != 40 || report.Failed ||
		report.RunID != "run" {
		t.Errorf("report: %+v", report)
	}
}

func TestDispatcherFallback(t *testing.T) {
	a := Func(func(context.Context, []metric.Metric) (string, error) {
		return "", errors.New("service down")
	})
	d := NewDispatcher(a, 5, time.Second, zap.NewNop())
	track(d, window(5, false, func(int) float64 { return 0 }))
	d.Wait()

	report, ok := d.Report()
	if !ok || report.Text != Fallback || !report.Failed {
		t.Errorf("report: want fallback have %+v", report)
	}
}

func TestDispatcherAdvisorPanics(t *testing.T) {
	calls := 0
	a := Func(func(context.Context, []metric.Metric) (string, error) {
		calls++
		if calls == 1 {
			panic("advisor bug")
		}
		return "ok", nil
	})
	d := NewDispatcher(a, 5, time.Second, zap.NewNop())
	ms := window(10, false, func(int) float64 { return 0 })

	track(d, ms[:5])
	d.Wait()
	report, ok := d.Report()
	if !ok || report.Text != Fallback || !report.Failed || report.Step != 5 {
		t.Errorf("report: want fallback have %+v", report)
	}

	// The panicking request no longer counts as in flight
	track(d, ms[5:])
	d.Wait()
	report, ok = d.Report()
	if !ok || report.Text != "ok" || report.Failed || report.Step != 10 {
		t.Errorf("report: %+v", report)
	}
}

func TestDispatcherTimeout(t *testing.T) {
	a := Func(func(ctx context.Context, _ []metric.Metric) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDispatcher(a, 1, 10*time.Millisecond, zap.NewNop())
	track(d, window(1, false, func(int) float64 { return 0 }))
	d.Wait()

	if report, _ := d.Report(); report.Text != Fallback {
		t.Errorf("report: want fallback have %+v", report)
	}
}

func TestDispatcherSkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	a := Func(func(context.Context, []metric.Metric) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return "done", nil
	})

	d := NewDispatcher(a, 2, time.Second, zap.NewNop())
	d.Reset("first")

	// Tracking never blocks on the advisor
	finished := make(chan struct{})
	go func() {
		track(d, window(10, false, func(int) float64 { return 0 }))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("track blocked on the advisor")
	}

	// A reset while a request is in flight discards its advice
	d.Reset("second")
	close(release)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls: want(1) have(%v)", calls)
	}
	if _, ok := d.Report(); ok {
		t.Errorf("stale report was stored after reset")
	}
}
