/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package lstm provides a minimal "Long Short-Term Memory RNN" (LSTM) [1] implementation.
//
// An LSTM is a type of recurrent neural network that addresses the vanishing gradient problem in vanilla RNNs through
// additional cells, input and output gates.
//
// The sequence is unrolled: each step of the LSTM is instantiated as its own graph nodes (a Cell), and all
// cells share the same weights -- the same graph.Node, hence the same graph.State. Their gradient
// contributions accumulate in the shared state during the backward pass, and the optimizer updates each
// weight once per training step.
//
// Each cell computes, for input x and previous cell and hidden states c0 and h0:
//
//	f = Sigmoid(x×Wxf + h0×Whf + bf)   // Forget gate.
//	i = Sigmoid(x×Wxi + h0×Whi + bi)   // Input gate.
//	g = Tanh(x×Wxc + h0×Whc + bc)      // Candidate cell state.
//	o = Sigmoid(x×Wxo + h0×Who + bo)   // Output gate.
//	C = f⊙c0 + i⊙g
//	H = o⊙C
//
// [1] https://www.bioinf.jku.at/publications/older/2604.pdf, Hochreiter & Schmidhuber, 1997
package lstm

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/layers/activations"
	"github.com/redtea-ml/redtea/types/shapes"
)

// Gate enumerates the four gates of an LSTM cell.
type Gate int

const (
	GateForget Gate = iota
	GateInput
	GateCandidate
	GateOutput
	NumGates
)

var gateNames = [NumGates]string{"forget", "input", "candidate", "output"}

// String implements fmt.Stringer.
func (g Gate) String() string {
	if g < 0 || g >= NumGates {
		return fmt.Sprintf("Gate(%d)", int(g))
	}
	return gateNames[g]
}

// Weights of an LSTM, indexed by Gate.
type Weights struct {
	// InputsW are shaped [featuresSize, hiddenSize].
	InputsW [NumGates]*Node

	// RecurrentW are shaped [hiddenSize, hiddenSize].
	RecurrentW [NumGates]*Node

	// Biases are shaped [1, hiddenSize], broadcast to the rows of the input.
	Biases [NumGates]*Node
}

// NewWeights creates the LSTM weights as variables in the current scope of ctx, named
// "<gate>_inputs_w", "<gate>_recurrent_w" and "<gate>_biases".
func NewWeights(ctx *context.Context, featuresSize, hiddenSize int) *Weights {
	w := &Weights{}
	for gate := range NumGates {
		w.InputsW[gate] = ctx.VariableWithShape(fmt.Sprintf("%s_inputs_w", gate), shapes.Make(featuresSize, hiddenSize)).Node()
		w.RecurrentW[gate] = ctx.VariableWithShape(fmt.Sprintf("%s_recurrent_w", gate), shapes.Make(hiddenSize, hiddenSize)).Node()
		w.Biases[gate] = ctx.VariableWithShape(fmt.Sprintf("%s_biases", gate), shapes.Make(1, hiddenSize)).Node()
	}
	return w
}

// All returns the twelve weight nodes, gate by gate.
func (w *Weights) All() []*Node {
	all := make([]*Node, 0, 3*NumGates)
	for gate := range NumGates {
		all = append(all, w.InputsW[gate], w.RecurrentW[gate], w.Biases[gate])
	}
	return all
}

// HiddenSize of the LSTM these weights are for.
func (w *Weights) HiddenSize() int { return w.InputsW[0].Cols() }

// FeaturesSize of the inputs the weights are for.
func (w *Weights) FeaturesSize() int { return w.InputsW[0].Rows() }

func (w *Weights) assertValid() {
	hiddenSize, featuresSize := w.HiddenSize(), w.FeaturesSize()
	for gate := range NumGates {
		if w.InputsW[gate] == nil || w.RecurrentW[gate] == nil || w.Biases[gate] == nil {
			exceptions.Panicf("lstm: missing weights for gate %s", gate)
		}
		shapes.AssertDims(w.InputsW[gate], featuresSize, hiddenSize)
		shapes.AssertDims(w.RecurrentW[gate], hiddenSize, hiddenSize)
		shapes.AssertDims(w.Biases[gate], 1, hiddenSize)
	}
}

// Cell is one step of an LSTM.
type Cell struct {
	node, c, h *Node
}

// NewCell builds one LSTM step for input x shaped [batchSize, featuresSize], given the previous
// cell state c0 and hidden state h0, both shaped [batchSize, hiddenSize].
func NewCell(x, c0, h0 *Node, w *Weights) *Cell {
	w.assertValid()
	batchSize, hiddenSize := x.Rows(), w.HiddenSize()
	shapes.AssertDims(x, batchSize, w.FeaturesSize())
	shapes.AssertDims(c0, batchSize, hiddenSize)
	shapes.AssertDims(h0, batchSize, hiddenSize)

	gate := func(g Gate, activation func(*Node) *Node) *Node {
		return activation(Add(Add(Mul(x, w.InputsW[g]), Mul(h0, w.RecurrentW[g])), w.Biases[g]))
	}
	forget := gate(GateForget, activations.Sigmoid)
	input := gate(GateInput, activations.Sigmoid)
	candidate := gate(GateCandidate, activations.Tanh)
	output := gate(GateOutput, activations.Sigmoid)

	c := Add(MulElt(forget, c0), MulElt(input, candidate))
	h := MulElt(output, c)
	return &Cell{
		node: Composite(NodeTypeLSTMCell, h),
		c:    c,
		h:    h,
	}
}

// Node is the cell output: a composite of type graph.NodeTypeLSTMCell sharing the state of H.
func (c *Cell) Node() *Node { return c.node }

// C returns the new cell state.
func (c *Cell) C() *Node { return c.c }

// H returns the new hidden state, which is also the cell output.
func (c *Cell) H() *Node { return c.h }

// LSTM holds an LSTM configuration. It can be created with New (or NewWithWeights),
// and once finished to be configured, can be applied to the sequence with Done.
type LSTM struct {
	ctx                                  *context.Context
	sequence                             []*Node
	hiddenSize                           int
	weights                              *Weights
	initialHiddenState, initialCellState *Node
}

// New creates a new LSTM layer to be configured and then applied to the sequence.
// Each element of the sequence is one step, shaped [batchSize, featuresSize].
//
// Weights are created in the current scope of ctx when Done is called.
func New(ctx *context.Context, sequence []*Node, hiddenSize int) *LSTM {
	if len(sequence) == 0 {
		exceptions.Panicf("lstm.New(): empty sequence")
	}
	if hiddenSize <= 0 {
		exceptions.Panicf("lstm.New(): invalid hidden size %d", hiddenSize)
	}
	return &LSTM{
		ctx:        ctx,
		sequence:   sequence,
		hiddenSize: hiddenSize,
	}
}

// NewWithWeights creates a new LSTM layer using the given weights -- as opposed to creating them
// in a context.
func NewWithWeights(sequence []*Node, weights *Weights) *LSTM {
	if weights == nil {
		exceptions.Panicf("lstm.NewWithWeights(): weights must not be nil")
	}
	l := New(nil, sequence, weights.HiddenSize())
	l.weights = weights
	return l
}

// InitialStates configures the LSTM initial hidden state and cell state (h_0 and c_0 in the literature).
// If not set they default to zero constants.
//
// Both must be shaped [batchSize, hiddenSize].
func (l *LSTM) InitialStates(initialHiddenState, initialCellState *Node) *LSTM {
	l.initialHiddenState = initialHiddenState
	l.initialCellState = initialCellState
	return l
}

// Done should be called once the LSTM is configured. It builds one cell per element of the
// sequence, threading the C and H of each cell into the next.
func (l *LSTM) Done() *Layer {
	batchSize, featuresSize := l.sequence[0].Rows(), l.sequence[0].Cols()
	for ii, x := range l.sequence {
		if x == nil {
			exceptions.Panicf("lstm: sequence element #%d is nil", ii)
		}
		if !x.Shape().Equal(l.sequence[0].Shape()) {
			exceptions.Panicf("lstm: sequence element #%d shaped %s, but element #0 is shaped %s",
				ii, x.Shape(), l.sequence[0].Shape())
		}
	}

	weights := l.weights
	if weights == nil {
		if l.ctx == nil {
			exceptions.Panicf("lstm: no context to create the weights")
		}
		weights = NewWeights(l.ctx, featuresSize, l.hiddenSize)
	}
	h, c := l.initialHiddenState, l.initialCellState
	if h == nil {
		h = Zeros(batchSize, l.hiddenSize)
	}
	if c == nil {
		c = Zeros(batchSize, l.hiddenSize)
	}

	layer := &Layer{
		weights:            weights,
		initialHiddenState: h,
		initialCellState:   c,
		cells:              make([]*Cell, 0, len(l.sequence)),
	}
	for _, x := range l.sequence {
		cell := NewCell(x, c, h, weights)
		layer.cells = append(layer.cells, cell)
		c, h = cell.C(), cell.H()
	}
	return layer
}

// Layer is the result of an unrolled LSTM.
type Layer struct {
	weights                              *Weights
	initialHiddenState, initialCellState *Node
	cells                                []*Cell
}

// Cells returns the cells, one per step of the sequence.
func (l *Layer) Cells() []*Cell { return l.cells }

// Outputs returns the output node of each cell, in order.
func (l *Layer) Outputs() []*Node {
	outputs := make([]*Node, len(l.cells))
	for ii, cell := range l.cells {
		outputs[ii] = cell.Node()
	}
	return outputs
}

// Last returns the output of the last cell.
func (l *Layer) Last() *Node { return l.cells[len(l.cells)-1].Node() }

// Weights shared by all cells.
func (l *Layer) Weights() *Weights { return l.weights }

// InitialStates returns the initial hidden and cell states (h_0 and c_0).
func (l *Layer) InitialStates() (hidden, cell *Node) {
	return l.initialHiddenState, l.initialCellState
}
