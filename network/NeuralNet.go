// Package network implements feed forward neural networks built on
// Gorgonia computational graphs
package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network whose forward pass has been added to a
// Gorgonia computational graph.
//
// The weights of a NeuralNet live in its learnable nodes. Set and
// Polyak modify these weights in place, so NeuralNets in different
// graphs never share weight tensors.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}

// Set sets the weights of dest to be equal to the weights of source
func Set(dest, source NeuralNet) error {
	return eachWeight(dest.Learnables(), source.Learnables(),
		func(d, s []float64) { copy(d, s) })
}

// Polyak sets the weights of dest to the Polyak average
//
//	dest ← tau * source + (1 - tau) * dest
func Polyak(dest, source NeuralNet, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("polyak: tau %v ∉ [0, 1]", tau)
	}
	return eachWeight(dest.Learnables(), source.Learnables(),
		func(d, s []float64) {
			floats.Scale(1-tau, d)
			floats.AddScaled(d, tau, s)
		})
}

// eachWeight calls f on the backing data of each pair of matching
// learnable nodes
func eachWeight(dest, source G.Nodes, f func(d, s []float64)) error {
	if len(dest) != len(source) {
		return fmt.Errorf("number of learnables differ\n\twant(%v)"+
			"\n\thave(%v)", len(dest), len(source))
	}

	for i := range dest {
		d, err := Float64s(dest[i].Value())
		if err != nil {
			return fmt.Errorf("destination %v: %v", dest[i].Name(), err)
		}
		s, err := Float64s(source[i].Value())
		if err != nil {
			return fmt.Errorf("source %v: %v", source[i].Name(), err)
		}
		if len(d) != len(s) {
			return fmt.Errorf("learnable %v has %v weights but source has %v",
				dest[i].Name(), len(d), len(s))
		}
		f(d, s)
	}
	return nil
}

// Float64s returns the data backing a Gorgonia Value. Scalar values are
// returned as a slice of length 1. The returned slice aliases the
// Value if the Value is a tensor.
func Float64s(v G.Value) ([]float64, error) {
	if v == nil {
		return nil, fmt.Errorf("float64s: nil value")
	}

	switch data := v.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	default:
		return nil, fmt.Errorf("float64s: unsupported data type %T", data)
	}
}

// Scalar returns the single float64 held by a Gorgonia Value
func Scalar(v G.Value) (float64, error) {
	data, err := Float64s(v)
	if err != nil {
		return 0, fmt.Errorf("scalar: %v", err)
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("scalar: value holds %v elements", len(data))
	}
	return data[0], nil
}

// newInput returns a new (batch, features) input node
func newInput(g *G.ExprGraph, batch, features int, name string) *G.Node {
	return G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, features),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}

// setInput binds row-major data to a (batch, features) input node
func setInput(input *G.Node, data []float64) error {
	shape := input.Shape()
	if len(data) != shape[0]*shape[1] {
		msg := fmt.Sprintf("invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", shape[0]*shape[1], len(data))
		panic(msg)
	}
	inputTensor := tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(shape...),
	)
	return G.Let(input, inputTensor)
}
