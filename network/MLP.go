package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// MLP implements a multi-layered perceptron. The hidden layers and the
// output layer each have a bias unit.
type MLP struct {
	g          *G.ExprGraph
	name       string
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Architecture, needed for cloning
	hiddenSizes []int
	activations []*Activation
	outputAct   *Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new multi-layered perceptron with
// outputs output nodes. The graph parameter g is populated with the
// MLP, and all nodes of the MLP are prefixed with name so that many
// networks can share a graph.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. For index
// i, hiddenSizes[i] is the number of nodes in hidden layer i and
// activations[i] is the activation function for hidden layer i. The
// final layer uses outputAct. Hidden layer weights are initialized
// with init, hidden biases with zeroes, and the final layer's weights
// and biases with outputInit.
func NewMLP(g *G.ExprGraph, features, batch, outputs int, hiddenSizes []int,
	activations []*Activation, outputAct *Activation, init,
	outputInit G.InitWFn, name string) (*MLP, error) {
	input := newInput(g, batch, features, name+"Input")

	return NewMLPFromInput(input, outputs, hiddenSizes, activations,
		outputAct, init, outputInit, name)
}

// NewMLPFromInput returns a new MLP whose input is the argument
// (batch, features) node. See NewMLP.
func NewMLPFromInput(input *G.Node, outputs int, hiddenSizes []int,
	activations []*Activation, outputAct *Activation, init,
	outputInit G.InitWFn, name string) (*MLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLPFromInput: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newMLPFromInput: input must be a matrix")
	}

	g := input.Graph()
	batch := input.Shape()[0]
	features := input.Shape()[1]

	layers := make([]*fcLayer, 0, len(hiddenSizes)+1)
	in := features
	for i, size := range hiddenSizes {
		layerName := fmt.Sprintf("%vL%v", name, i)
		layers = append(layers, newFCLayer(g, in, size, init, G.Zeroes(),
			activations[i], layerName))
		in = size
	}
	layers = append(layers, newFCLayer(g, in, outputs, outputInit,
		outputInit, outputAct, name+"Out"))

	network := &MLP{
		g:           g,
		name:        name,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		activations: activations,
		outputAct:   outputAct,
	}

	if _, err := network.fwd(input); err != nil {
		msg := "newMLPFromInput: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return network, nil
}

// Graph returns the computational graph of the MLP.
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// Name returns the prefix of all nodes in the MLP
func (m *MLP) Name() string {
	return m.name
}

// CloneWithBatch clones an MLP into a new graph with a new input batch
// size. The clone has the same weights as m.
func (m *MLP) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()
	input := newInput(graph, batchSize, m.numInputs, m.name+"Input")

	return m.CloneWithInputTo(input, m.name)
}

// CloneWithInputTo clones an MLP into the graph of input, using input as
// the input node of the clone. The clone has the same weights as m, and
// its nodes are prefixed with name.
func (m *MLP) CloneWithInputTo(input *G.Node, name string) (*MLP, error) {
	if !input.IsMatrix() || input.Shape()[1] != m.numInputs {
		return nil, fmt.Errorf("cloneWithInputTo: input must be a matrix "+
			"with %v columns", m.numInputs)
	}

	clone := &MLP{
		g:           input.Graph(),
		name:        name,
		layers:      make([]*fcLayer, len(m.layers)),
		input:       input,
		numOutputs:  m.numOutputs,
		numInputs:   m.numInputs,
		batchSize:   input.Shape()[0],
		hiddenSizes: m.hiddenSizes,
		activations: m.activations,
		outputAct:   m.outputAct,
	}
	for i := range m.layers {
		layerName := fmt.Sprintf("%vL%v", name, i)
		if i == len(m.layers)-1 {
			layerName = name + "Out"
		}
		clone.layers[i] = m.layers[i].cloneTo(clone.g, layerName)
	}

	if _, err := clone.fwd(input); err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: could not clone: %v", err)
	}
	if err := clone.Set(m); err != nil {
		return nil, fmt.Errorf("cloneWithInputTo: could not set weights: %v",
			err)
	}

	return clone, nil
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of features in a single input row
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs from the network
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. Inputs should be in row major order.
func (m *MLP) SetInput(input []float64) error {
	return setInput(m.input, input)
}

// Set sets the weights of the MLP to be equal to the weights of source
func (m *MLP) Set(source NeuralNet) error {
	if err := Set(m, source); err != nil {
		return fmt.Errorf("set: %v", err)
	}
	return nil
}

// Polyak sets the weights of the MLP to be a polyak average between its
// existing weights and the weights of source
func (m *MLP) Polyak(source NeuralNet, tau float64) error {
	if err := Polyak(m, source, tau); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}
	return nil
}

// Learnables returns the learnable nodes in an MLP
func (m *MLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		m.learnables = learnablesOf(m.layers)
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients.
func (m *MLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if m.model == nil {
		m.model = modelOf(m.Learnables())
	}
	return m.model
}

// fwd performs the forward pass of the MLP on the input node
func (m *MLP) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)

	return pred, nil
}

// Output returns the output of the MLP after its graph has been run
func (m *MLP) Output() G.Value {
	return m.predVal
}

// Prediction returns the node of the computational graph the stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Input returns the input node of the MLP
func (m *MLP) Input() *G.Node {
	return m.input
}

func learnablesOf(layers []*fcLayer) G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(layers))
	for _, l := range layers {
		learnables = append(learnables, l.Weights(), l.Bias())
	}
	return G.Nodes(learnables)
}

func modelOf(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}
