package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newActor(t *testing.T, g *G.ExprGraph, batch int, name string) *MLP {
	t.Helper()
	net, err := NewMLP(g, 3, batch, 1, []int{8, 8},
		[]*Activation{ReLU(), ReLU()}, TanH(), G.GlorotU(1.0),
		G.Uniform(-0.003, 0.003), name)
	if err != nil {
		t.Fatalf("newMLP: %v", err)
	}
	return net
}

func weights(t *testing.T, net NeuralNet) [][]float64 {
	t.Helper()
	var out [][]float64
	for _, n := range net.Learnables() {
		data, err := Float64s(n.Value())
		if err != nil {
			t.Fatalf("float64s: %v", err)
		}
		out = append(out, append([]float64(nil), data...))
	}
	return out
}

func TestPolyakExact(t *testing.T) {
	const tau = 0.005

	online := newActor(t, G.NewGraph(), 1, "online")
	target := newActor(t, G.NewGraph(), 1, "target")

	before := weights(t, target)
	src := weights(t, online)

	if err := target.Polyak(online, tau); err != nil {
		t.Fatalf("polyak: %v", err)
	}
	after := weights(t, target)

	for i := range after {
		for j := range after[i] {
			want := tau*src[i][j] + (1-tau)*before[i][j]
			if math.Abs(after[i][j]-want) > 1e-15 {
				t.Errorf("learnable %v[%v]: want(%v) have(%v)", i, j, want,
					after[i][j])
			}
		}
	}

	// Online weights are never changed by a Polyak update
	for i, w := range weights(t, online) {
		for j := range w {
			if w[j] != src[i][j] {
				t.Fatalf("polyak modified the source network")
			}
		}
	}
}

func TestPolyakTauBounds(t *testing.T) {
	a := newActor(t, G.NewGraph(), 1, "a")
	b := newActor(t, G.NewGraph(), 1, "b")
	if err := a.Polyak(b, 1.5); err == nil {
		t.Errorf("expected error for tau > 1")
	}
}

func TestSetDoesNotAlias(t *testing.T) {
	src := newActor(t, G.NewGraph(), 1, "src")
	dest := newActor(t, G.NewGraph(), 1, "dest")

	if err := dest.Set(src); err != nil {
		t.Fatalf("set: %v", err)
	}
	srcW, destW := weights(t, src), weights(t, dest)
	for i := range srcW {
		for j := range srcW[i] {
			if srcW[i][j] != destW[i][j] {
				t.Fatalf("weights differ after set")
			}
		}
	}

	// Changing the source must not change the destination
	data, _ := Float64s(src.Learnables()[0].Value())
	old := data[0]
	data[0] += 1
	after, _ := Float64s(dest.Learnables()[0].Value())
	if after[0] != old {
		t.Errorf("set aliased source weights")
	}
}

func TestCloneWithBatch(t *testing.T) {
	net := newActor(t, G.NewGraph(), 1, "actor")
	cloneNet, err := net.CloneWithBatch(4)
	if err != nil {
		t.Fatalf("cloneWithBatch: %v", err)
	}
	clone := cloneNet.(*MLP)

	if clone.BatchSize() != 4 || clone.Features() != 3 {
		t.Errorf("clone shape: batch %v features %v", clone.BatchSize(),
			clone.Features())
	}

	// The same observation gives the same action in both networks
	obs := []float64{0.1, -0.2, 0.3}
	if err := net.SetInput(obs); err != nil {
		t.Fatalf("setInput: %v", err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}
	want, _ := Float64s(net.Output())
	wantAction := want[0]

	batch := append(append(append(append([]float64{}, obs...), obs...),
		obs...), obs...)
	if err := clone.SetInput(batch); err != nil {
		t.Fatalf("setInput: %v", err)
	}
	cloneVM := G.NewTapeMachine(clone.Graph())
	defer cloneVM.Close()
	if err := cloneVM.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}
	have, _ := Float64s(clone.Output())
	if len(have) != 4 {
		t.Fatalf("clone output: want(4) have(%v) values", len(have))
	}
	for i := range have {
		if math.Abs(have[i]-wantAction) > 1e-12 {
			t.Errorf("clone action %v: want(%v) have(%v)", i, wantAction,
				have[i])
		}
		if have[i] < -1 || have[i] > 1 {
			t.Errorf("action %v outside [-1, 1]", have[i])
		}
	}
}

func TestCriticShapes(t *testing.T) {
	g := G.NewGraph()
	critic, err := NewCritic(g, 3, 1, 5, []int{8, 8}, G.GlorotU(1.0),
		G.Uniform(-0.003, 0.003), "critic")
	if err != nil {
		t.Fatalf("newCritic: %v", err)
	}

	// obs layer, one hidden layer after concatenation, output layer
	if len(critic.Learnables()) != 6 {
		t.Errorf("learnables: want(6) have(%v)", len(critic.Learnables()))
	}
	if w := critic.Learnables()[2].Shape(); w[0] != 9 || w[1] != 8 {
		t.Errorf("post-concat weights shape: want(9, 8) have%v", w)
	}

	rows := make([]float64, 5*critic.Features())
	for i := range rows {
		rows[i] = float64(i) / 20
	}
	if err := critic.SetInput(rows); err != nil {
		t.Fatalf("setInput: %v", err)
	}
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("runAll: %v", err)
	}
	q, err := Float64s(critic.Output())
	if err != nil {
		t.Fatalf("float64s: %v", err)
	}
	if len(q) != 5 {
		t.Errorf("output: want(5) have(%v) values", len(q))
	}
}

func TestCriticCloneOntoActor(t *testing.T) {
	critic, err := NewCritic(G.NewGraph(), 3, 1, 4, []int{8, 8},
		G.GlorotU(1.0), G.Uniform(-0.003, 0.003), "critic")
	if err != nil {
		t.Fatalf("newCritic: %v", err)
	}

	g := G.NewGraph()
	actor := newActor(t, g, 4, "actor")
	clone, err := critic.CloneWithInputsTo(actor.Input(), actor.Prediction(),
		"actorCritic")
	if err != nil {
		t.Fatalf("cloneWithInputsTo: %v", err)
	}
	if clone.Graph() != g {
		t.Errorf("clone was not added to the actor's graph")
	}

	cw, w := weights(t, clone), weights(t, critic)
	for i := range w {
		for j := range w[i] {
			if cw[i][j] != w[i][j] {
				t.Fatalf("clone weights differ from critic")
			}
		}
	}
}

func TestParseActivation(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "identity"} {
		a, err := ParseActivation(name)
		if err != nil {
			t.Errorf("parseActivation(%q): %v", name, err)
			continue
		}
		if a.String() != name {
			t.Errorf("parseActivation(%q) returned %v", name, a)
		}
	}
	if _, err := ParseActivation("sigmoid"); err == nil {
		t.Errorf("expected error parsing unknown activation")
	}
}
