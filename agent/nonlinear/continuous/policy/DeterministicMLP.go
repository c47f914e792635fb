// Package policy implements policies for continuous-action agents
// which use neural network function approximation
package policy

import (
	"fmt"

	env "github.com/samuelfneumann/pointmass/environment"
	"github.com/samuelfneumann/pointmass/network"
	"github.com/samuelfneumann/pointmass/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// DeterministicMLP implements a deterministic policy whose actions are
// the output of an MLP with a tanh output layer, so that each action
// dimension is in [-1, 1].
//
// A DeterministicMLP with batch size 1 owns a VM and can select
// actions. Policies with larger batches are only used as part of a
// learner's computational graph.
type DeterministicMLP struct {
	net  *network.MLP
	vm   G.VM
	eval bool
}

// NewDeterministicMLP creates a new DeterministicMLP for environment
// e in graph g. The hidden layers of the MLP have sizes hiddenSizes
// and ReLU activations and weights initialized with init. The output
// layer is initialized with outputInit. All nodes are prefixed with
// name.
func NewDeterministicMLP(e env.Environment, batch int, g *G.ExprGraph,
	hiddenSizes []int, init, outputInit G.InitWFn,
	name string) (*DeterministicMLP, error) {
	actionSpec := e.ActionSpec()
	if actionSpec.Cardinality != env.Continuous {
		return nil, fmt.Errorf("newDeterministicMLP: actions must be " +
			"continuous")
	}
	for i := 0; i < actionSpec.Dims(); i++ {
		if actionSpec.LowerBound.AtVec(i) != -1 ||
			actionSpec.UpperBound.AtVec(i) != 1 {
			return nil, fmt.Errorf("newDeterministicMLP: action dimension "+
				"%v must be bounded by [-1, 1]", i)
		}
	}

	activations := make([]*network.Activation, len(hiddenSizes))
	for i := range activations {
		activations[i] = network.ReLU()
	}

	net, err := network.NewMLP(g, e.ObservationSpec().Dims(), batch,
		actionSpec.Dims(), hiddenSizes, activations, network.TanH(), init,
		outputInit, name)
	if err != nil {
		return nil, fmt.Errorf("newDeterministicMLP: could not create "+
			"policy network: %v", err)
	}

	return newDeterministicMLP(net), nil
}

func newDeterministicMLP(net *network.MLP) *DeterministicMLP {
	pol := &DeterministicMLP{net: net}
	if net.BatchSize() == 1 {
		pol.vm = G.NewTapeMachine(net.Graph())
	}
	return pol
}

// CloneWithBatch returns a copy of the policy in a new graph whose
// network takes batches of batch observations
func (d *DeterministicMLP) CloneWithBatch(batch int) (*DeterministicMLP,
	error) {
	net, err := d.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return newDeterministicMLP(net.(*network.MLP)), nil
}

// SelectAction returns the action the policy takes at timestep t
func (d *DeterministicMLP) SelectAction(t timestep.TimeStep) (*mat.VecDense,
	error) {
	if d.vm == nil {
		return nil, fmt.Errorf("selectAction: policy with batch size %v "+
			"cannot select actions", d.net.BatchSize())
	}

	obs := t.Observation.RawVector().Data
	if err := d.net.SetInput(obs); err != nil {
		return nil, fmt.Errorf("selectAction: could not set input: %v", err)
	}
	if err := d.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("selectAction: could not run policy: %v", err)
	}
	defer d.vm.Reset()

	out, err := network.Float64s(d.net.Output())
	if err != nil {
		return nil, fmt.Errorf("selectAction: %v", err)
	}

	action := make([]float64, len(out))
	copy(action, out)
	return mat.NewVecDense(len(action), action), nil
}

// Network returns the policy's MLP
func (d *DeterministicMLP) Network() network.NeuralNet {
	return d.net
}

// MLP returns the policy's MLP as its concrete type
func (d *DeterministicMLP) MLP() *network.MLP {
	return d.net
}

// Eval sets the policy to evaluation mode. A DeterministicMLP selects
// actions in the same way in both modes.
func (d *DeterministicMLP) Eval() { d.eval = true }

// Train sets the policy to training mode
func (d *DeterministicMLP) Train() { d.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (d *DeterministicMLP) IsEval() bool { return d.eval }

// Close releases the resources held by the policy's VM
func (d *DeterministicMLP) Close() error {
	if d.vm != nil {
		return d.vm.Close()
	}
	return nil
}
