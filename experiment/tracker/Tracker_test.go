package tracker

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelfneumann/pointmass/environment/pointmass"
	"github.com/samuelfneumann/pointmass/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/plot/plotter"
)

// metrics returns n sequential metrics whose episodes end every
// episodeLength steps, each with reward equal to its step
func metrics(n, episodeLength int) []metric.Metric {
	out := make([]metric.Metric, n)
	for i := range out {
		step := i + 1
		out[i] = metric.Metric{
			Step:       step,
			Reward:     float64(step),
			CriticLoss: 1 / float64(step),
			ActorLoss:  -float64(step),
			Episode:    i / episodeLength,
			Terminal:   step%episodeLength == 0,
			Learned:    step > 2,
		}
	}
	return out
}

func TestWindowKeepsMostRecent(t *testing.T) {
	w := NewWindow(3)
	if _, ok := w.Latest(); ok {
		t.Errorf("expected no latest metric in an empty window")
	}

	for i, m := range metrics(5, 10) {
		w.Track(m, pointmass.SimState{Position: float64(i)})
	}

	got := w.Metrics(0)
	if len(got) != 3 {
		t.Fatalf("window: want(3) have(%v) metrics", len(got))
	}
	for i, m := range got {
		if m.Step != i+3 {
			t.Errorf("metric %v: want step %v have %v", i, i+3, m.Step)
		}
	}
	if last := w.Metrics(2); len(last) != 2 || last[1].Step != 5 {
		t.Errorf("last two metrics: have %v", last)
	}
	if w.State().Position != 4 {
		t.Errorf("state: want position 4 have %v", w.State().Position)
	}

	// The returned slice must not alias the window
	got[0].Step = 100
	if w.Metrics(0)[0].Step == 100 {
		t.Errorf("metrics aliased the window")
	}

	w.Reset("run")
	if len(w.Metrics(0)) != 0 || w.RunID() != "run" {
		t.Errorf("reset did not clear the window")
	}
}

func TestReturnSumsEpisodes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(filename)

	// Episodes of steps {1, 2, 3} and {4, 5, 6}, with step 7 unfinished
	for _, m := range metrics(7, 3) {
		r.Track(m, pointmass.SimState{})
	}

	want := []float64{6, 15}
	got := r.Returns()
	if len(got) != len(want) {
		t.Fatalf("returns: want(%v) have(%v)", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("return %v: want(%v) have(%v)", i, want[i], got[i])
		}
	}

	if err := r.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadData(filename)
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != 6 || loaded[1] != 15 {
		t.Errorf("loaded returns: want(%v) have(%v)", want, loaded)
	}

	r.Reset("next")
	if len(r.Returns()) != 0 {
		t.Errorf("reset did not discard returns")
	}
	r.Track(metrics(1, 3)[0], pointmass.SimState{})
}

func TestReturnPanicsOnGap(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for non-sequential steps")
		}
	}()

	r := NewReturn("")
	ms := metrics(3, 10)
	r.Track(ms[0], pointmass.SimState{})
	r.Track(ms[2], pointmass.SimState{})
}

func TestLoggerInterval(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core), 2)

	l.Reset("run")
	for _, m := range metrics(4, 3) {
		l.Track(m, pointmass.SimState{})
	}

	if n := logs.FilterMessage("training").Len(); n != 2 {
		t.Errorf("training logs: want(2) have(%v)", n)
	}
	episodes := logs.FilterMessage("episode finished").All()
	if len(episodes) != 1 {
		t.Fatalf("episode logs: want(1) have(%v)", len(episodes))
	}
	if ret := episodes[0].ContextMap()["return"]; ret != 6.0 {
		t.Errorf("episode return: want(6) have(%v)", ret)
	}
	if n := logs.FilterMessage("run reset").Len(); n != 1 {
		t.Errorf("reset logs: want(1) have(%v)", n)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSQLite(filepath.Join(t.TempDir(), "metrics.db"), zap.NewNop())
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	first := metrics(4, 2)
	s.Reset("first")
	for _, m := range first {
		s.Track(m, pointmass.SimState{Position: 0.1, Target: 0.2})
	}
	s.Reset("second")
	s.Track(metrics(1, 2)[0], pointmass.SimState{})

	if err := s.Err(); err != nil {
		t.Fatalf("err: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0] != "first" || runs[1] != "second" {
		t.Errorf("runs: want([first second]) have(%v)", runs)
	}

	loaded, err := s.Metrics(ctx, "first")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if len(loaded) != len(first) {
		t.Fatalf("metrics: want(%v) have(%v)", len(first), len(loaded))
	}
	for i := range first {
		if loaded[i] != first[i] {
			t.Errorf("metric %v: want(%+v) have(%+v)", i, first[i], loaded[i])
		}
	}
}

func TestSQLiteUninitialized(t *testing.T) {
	s := NewSQLite("unused.db", zap.NewNop())
	s.Track(metric.Metric{Step: 1}, pointmass.SimState{})
	if s.Err() == nil {
		t.Errorf("expected error tracking without a database")
	}
	if _, err := s.Runs(context.Background()); err == nil {
		t.Errorf("expected error querying without a database")
	}
}

func TestPlotSave(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "curves.png")
	p := NewPlot(filename, 3)

	if err := p.Save(); err == nil {
		t.Errorf("expected error saving an empty plot")
	}

	for _, m := range metrics(20, 5) {
		p.Track(m, pointmass.SimState{})
	}
	if err := p.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("saved plot is not a PNG")
	}
}

func TestMovingAverage(t *testing.T) {
	xys := metricsXYs([]float64{1, 2, 3, 4})
	avg := movingAverage(xys, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if math.Abs(avg[i].Y-want[i]) > 1e-12 {
			t.Errorf("average %v: want(%v) have(%v)", i, want[i], avg[i].Y)
		}
	}
}

func metricsXYs(ys []float64) plotter.XYs {
	out := make(plotter.XYs, len(ys))
	for i, y := range ys {
		out[i].X = float64(i)
		out[i].Y = y
	}
	return out
}

func TestProgressDisplays(t *testing.T) {
	var out bytes.Buffer
	p := NewProgress(&out, 10, 5)
	for _, m := range metrics(10, 100) {
		p.Track(m, pointmass.SimState{})
	}
	p.Close()

	if !strings.Contains(out.String(), "100.00%") {
		t.Errorf("expected a full progress bar, have %q", out.String())
	}
}
