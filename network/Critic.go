package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Critic implements an action-value network Q(s, a). The observation is
// passed through the first hidden layer, the action is then
// concatenated onto that layer's output, and the result is passed
// through the remaining hidden layers to a single linear output. All
// hidden layers use ReLU activations.
type Critic struct {
	g           *G.ExprGraph
	name        string
	obsInput    *G.Node
	actionInput *G.Node
	obsLayer    *fcLayer
	layers      []*fcLayer

	numObs      int
	numActions  int
	batchSize   int
	hiddenSizes []int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
}

// NewCritic creates a new Critic in graph g for observations with
// features features and actions with actions dimensions. The number of
// hidden layers is len(hiddenSizes), which must be at least 1. Hidden
// layer weights are initialized with init and the output layer with
// outputInit.
func NewCritic(g *G.ExprGraph, features, actions, batch int,
	hiddenSizes []int, init, outputInit G.InitWFn, name string) (*Critic,
	error) {
	obs := newInput(g, batch, features, name+"ObsInput")
	action := newInput(g, batch, actions, name+"ActionInput")

	return NewCriticFromInputs(obs, action, hiddenSizes, init, outputInit,
		name)
}

// NewCriticFromInputs creates a new Critic which uses the argument nodes
// as its observation and action inputs. Both nodes must belong to the
// same graph. See NewCritic.
func NewCriticFromInputs(obs, action *G.Node, hiddenSizes []int, init,
	outputInit G.InitWFn, name string) (*Critic, error) {
	if len(hiddenSizes) < 1 {
		return nil, fmt.Errorf("newCriticFromInputs: at least one hidden " +
			"layer is needed")
	}
	if obs.Graph() != action.Graph() {
		return nil, fmt.Errorf("newCriticFromInputs: inputs do not share " +
			"a graph")
	}
	if !obs.IsMatrix() || !action.IsMatrix() {
		return nil, fmt.Errorf("newCriticFromInputs: inputs must be " +
			"matrices")
	}
	if obs.Shape()[0] != action.Shape()[0] {
		return nil, fmt.Errorf("newCriticFromInputs: observation batch %v "+
			"!= action batch %v", obs.Shape()[0], action.Shape()[0])
	}

	g := obs.Graph()
	numObs, numActions := obs.Shape()[1], action.Shape()[1]

	obsLayer := newFCLayer(g, numObs, hiddenSizes[0], init, G.Zeroes(),
		ReLU(), name+"L0")

	layers := make([]*fcLayer, 0, len(hiddenSizes))
	in := hiddenSizes[0] + numActions
	for i := 1; i < len(hiddenSizes); i++ {
		layerName := fmt.Sprintf("%vL%v", name, i)
		layers = append(layers, newFCLayer(g, in, hiddenSizes[i], init,
			G.Zeroes(), ReLU(), layerName))
		in = hiddenSizes[i]
	}
	layers = append(layers, newFCLayer(g, in, 1, outputInit, outputInit,
		Identity(), name+"Out"))

	critic := &Critic{
		g:           g,
		name:        name,
		obsInput:    obs,
		actionInput: action,
		obsLayer:    obsLayer,
		layers:      layers,
		numObs:      numObs,
		numActions:  numActions,
		batchSize:   obs.Shape()[0],
		hiddenSizes: hiddenSizes,
	}

	if _, err := critic.fwd(); err != nil {
		return nil, fmt.Errorf("newCriticFromInputs: could not compute "+
			"forward pass: %v", err)
	}

	return critic, nil
}

// Graph returns the computational graph of the Critic
func (c *Critic) Graph() *G.ExprGraph {
	return c.g
}

// CloneWithBatch clones the Critic into a new graph with a new batch
// size. The clone has the same weights as c.
func (c *Critic) CloneWithBatch(batchSize int) (NeuralNet, error) {
	g := G.NewGraph()
	obs := newInput(g, batchSize, c.numObs, c.name+"ObsInput")
	action := newInput(g, batchSize, c.numActions, c.name+"ActionInput")

	return c.CloneWithInputsTo(obs, action, c.name)
}

// CloneWithInputsTo clones the Critic into the graph of the argument
// inputs, using them as the clone's observation and action inputs. The
// clone has the same weights as c, and its nodes are prefixed by name.
//
// If action is computed by the graph, such as the prediction of an
// actor network, SetInput must not be called on the clone.
func (c *Critic) CloneWithInputsTo(obs, action *G.Node,
	name string) (*Critic, error) {
	if obs.Shape()[1] != c.numObs || action.Shape()[1] != c.numActions {
		return nil, fmt.Errorf("cloneWithInputsTo: inputs must have %v "+
			"and %v columns", c.numObs, c.numActions)
	}

	clone, err := NewCriticFromInputs(obs, action, c.hiddenSizes, G.Zeroes(),
		G.Zeroes(), name)
	if err != nil {
		return nil, fmt.Errorf("cloneWithInputsTo: %v", err)
	}

	if err := clone.Set(c); err != nil {
		return nil, fmt.Errorf("cloneWithInputsTo: could not set weights: %v",
			err)
	}
	return clone, nil
}

// BatchSize returns the number of (observation, action) pairs the
// Critic evaluates at once
func (c *Critic) BatchSize() int {
	return c.batchSize
}

// Features returns the number of features in one input row, the
// observation features followed by the action dimensions
func (c *Critic) Features() int {
	return c.numObs + c.numActions
}

// Outputs returns the number of outputs of the Critic, which is always 1
func (c *Critic) Outputs() int {
	return 1
}

// SetInput sets the observation and action inputs from rows of
// concatenated observations and actions, in row major order
func (c *Critic) SetInput(input []float64) error {
	rowSize := c.Features()
	if len(input) != rowSize*c.batchSize {
		msg := fmt.Sprintf("invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", rowSize*c.batchSize, len(input))
		panic(msg)
	}

	obs := make([]float64, 0, c.numObs*c.batchSize)
	actions := make([]float64, 0, c.numActions*c.batchSize)
	for row := 0; row < c.batchSize; row++ {
		start := row * rowSize
		obs = append(obs, input[start:start+c.numObs]...)
		actions = append(actions, input[start+c.numObs:start+rowSize]...)
	}

	return c.SetInputs(obs, actions)
}

// SetInputs sets the observation and action inputs, each in row major
// order
func (c *Critic) SetInputs(obs, actions []float64) error {
	if err := setInput(c.obsInput, obs); err != nil {
		return fmt.Errorf("setInputs: could not set observations: %v", err)
	}
	if err := setInput(c.actionInput, actions); err != nil {
		return fmt.Errorf("setInputs: could not set actions: %v", err)
	}
	return nil
}

// Set sets the weights of the Critic to be equal to the weights of
// source
func (c *Critic) Set(source NeuralNet) error {
	if err := Set(c, source); err != nil {
		return fmt.Errorf("set: %v", err)
	}
	return nil
}

// Polyak sets the weights of the Critic to be a polyak average between
// its existing weights and the weights of source
func (c *Critic) Polyak(source NeuralNet, tau float64) error {
	if err := Polyak(c, source, tau); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}
	return nil
}

// Learnables returns the learnable nodes of the Critic
func (c *Critic) Learnables() G.Nodes {
	if c.learnables == nil {
		layers := append([]*fcLayer{c.obsLayer}, c.layers...)
		c.learnables = learnablesOf(layers)
	}
	return c.learnables
}

// Model returns the learnable nodes with their gradients
func (c *Critic) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = modelOf(c.Learnables())
	}
	return c.model
}

// fwd adds the forward pass of the Critic to its graph
func (c *Critic) fwd() (*G.Node, error) {
	hidden, err := c.obsLayer.fwd(c.obsInput)
	if err != nil {
		return nil, fmt.Errorf("fwd: observation layer: %v", err)
	}

	pred, err := G.Concat(1, hidden, c.actionInput)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not concatenate action: %v", err)
	}

	for i, l := range c.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i+1, err)
		}
	}

	c.prediction = pred
	G.Read(c.prediction, &c.predVal)

	return pred, nil
}

// Output returns the output of the Critic after its graph has been run
func (c *Critic) Output() G.Value {
	return c.predVal
}

// Prediction returns the node which computes the Critic's action values
func (c *Critic) Prediction() *G.Node {
	return c.prediction
}
