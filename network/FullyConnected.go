package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds a new fcLayer to the graph g. Weights are initialized
// with wInit and biases with bInit. The learnable nodes are named with
// name followed by "W" and "b".
func newFCLayer(g *G.ExprGraph, in, out int, wInit, bInit G.InitWFn,
	act *Activation, name string) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithName(name+"W"),
		G.WithInit(wInit),
	)

	bias := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, out),
		G.WithName(name+"b"),
		G.WithInit(bInit),
	)

	return &fcLayer{weights: weights, bias: bias, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, f.weights)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, f.bias, nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}

	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}

// cloneTo returns a new fcLayer in graph g with the same shape and
// activation as f. The weights of the new layer are zeroed.
func (f *fcLayer) cloneTo(g *G.ExprGraph, name string) *fcLayer {
	in, out := f.weights.Shape()[0], f.weights.Shape()[1]
	return newFCLayer(g, in, out, G.Zeroes(), G.Zeroes(), f.act, name)
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}
