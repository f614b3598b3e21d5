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

package lstm

import (
	"math"
	"slices"
	"testing"

	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/graph/graphtest"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/context/initializers"
	"github.com/redtea-ml/redtea/ml/train/losses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	batchSize    = 2
	featuresSize = 3
	hiddenSize   = 4
	seqLen       = 3
)

func testSequence() []*Node {
	sequence := make([]*Node, seqLen)
	for step := range seqLen {
		data := make([]float64, batchSize*featuresSize)
		for ii := range data {
			data[ii] = 0.1*float64(ii+1) - 0.2*float64(step)
		}
		sequence[step] = Constant(mat.NewDense(batchSize, featuresSize, data))
	}
	return sequence
}

func newTestContext() *context.Context {
	ctx := context.New().WithInitializer(initializers.Uniform(-0.5, 0.5))
	ctx.RngStateFromSeed(42)
	return ctx
}

// copyWeights returns new variables with the same values as w.
func copyWeights(w *Weights) *Weights {
	c := &Weights{}
	for gate := range NumGates {
		c.InputsW[gate] = Variable(w.InputsW[gate].Output())
		c.RecurrentW[gate] = Variable(w.RecurrentW[gate].Output())
		c.Biases[gate] = Variable(w.Biases[gate].Output())
	}
	return c
}

func sequenceLoss(outputs []*Node) *Node {
	target := Ones(batchSize*len(outputs), hiddenSize)
	return losses.LeastSquares(Concat(outputs, RowAxis), target)
}

func TestCell(t *testing.T) {
	ctx := newTestContext()
	weights := NewWeights(ctx.In("lstm"), featuresSize, hiddenSize)
	assert.Equal(t, 12, ctx.NumVariables())
	require.Len(t, weights.All(), 12)

	x := Constant(graphtest.Dense([]float64{0.5, -0.3, 0.1}, []float64{0.2, 0.4, -0.6}))
	c0 := Constant(mat.NewDense(batchSize, hiddenSize, []float64{0.1, 0.2, 0.3, 0.4, -0.1, -0.2, -0.3, -0.4}))
	h0 := Constant(mat.NewDense(batchSize, hiddenSize, []float64{0.4, 0.3, 0.2, 0.1, 0, 0, 0.5, 0.5}))
	cell := NewCell(x, c0, h0, weights)
	assert.Equal(t, NodeTypeLSTMCell, cell.Node().Type())
	assert.Same(t, cell.H().State(), cell.Node().State())
	cell.Node().Forward()
	cell.C().Forward()

	// Closed form.
	gate := func(g Gate, fn func(float64) float64) *mat.Dense {
		v := mat.NewDense(batchSize, hiddenSize, nil)
		var tmp mat.Dense
		v.Mul(x.Output(), weights.InputsW[g].Output())
		tmp.Mul(h0.Output(), weights.RecurrentW[g].Output())
		v.Add(v, &tmp)
		v.Apply(func(_, j int, value float64) float64 {
			return fn(value + weights.Biases[g].Output().At(0, j))
		}, v)
		return v
	}
	sigmoid := func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
	f, i := gate(GateForget, sigmoid), gate(GateInput, sigmoid)
	g, o := gate(GateCandidate, math.Tanh), gate(GateOutput, sigmoid)
	wantC := mat.NewDense(batchSize, hiddenSize, nil)
	var tmp mat.Dense
	wantC.MulElem(f, c0.Output())
	tmp.MulElem(i, g)
	wantC.Add(wantC, &tmp)
	wantH := mat.NewDense(batchSize, hiddenSize, nil)
	wantH.MulElem(o, wantC)
	graphtest.RequireMatrixInDelta(t, wantC, cell.C().Output(), 1e-12)
	graphtest.RequireMatrixInDelta(t, wantH, cell.Node().Output(), 1e-12)

	loss := losses.LeastSquares(cell.Node(), Zeros(batchSize, hiddenSize))
	graphtest.CheckGradient(t, loss, append(weights.All(), x, c0, h0), graphtest.GradientEpsilon)
}

func TestLayer(t *testing.T) {
	ctx := newTestContext()
	sequence := testSequence()
	layer := New(ctx.In("lstm"), sequence, hiddenSize).Done()
	require.Len(t, layer.Outputs(), seqLen)
	require.Len(t, layer.Cells(), seqLen)
	assert.Same(t, layer.Cells()[seqLen-1].Node(), layer.Last())
	h0, c0 := layer.InitialStates()
	assert.Equal(t, NodeTypeConstant, h0.Type())
	assert.Equal(t, 0.0, mat.Sum(c0.Output()))
	for _, output := range layer.Outputs() {
		assert.Equal(t, batchSize, output.Rows())
		assert.Equal(t, hiddenSize, output.Cols())
	}

	// Each cell threads the states of the previous one.
	cells := layer.Cells()
	for step := 1; step < seqLen; step++ {
		assert.True(t, slices.Contains(nodesReachable(cells[step].C()), cells[step-1].C()))
	}

	loss := sequenceLoss(layer.Outputs())
	graphtest.CheckGradient(t, loss, layer.Weights().All(), graphtest.GradientEpsilon)

	require.Panics(t, func() { New(ctx, nil, hiddenSize) })
	require.Panics(t, func() { New(ctx, sequence, 0) })
	require.Panics(t, func() { New(ctx.In("other"), []*Node{sequence[0], Zeros(1, 1)}, hiddenSize).Done() })
}

func nodesReachable(root *Node) []*Node {
	var all []*Node
	visited := make(map[*Node]bool)
	var visit func(node *Node)
	visit = func(node *Node) {
		if visited[node] {
			return
		}
		visited[node] = true
		all = append(all, node)
		for _, input := range node.Inputs() {
			visit(input)
		}
	}
	visit(root)
	return all
}

// countingOptimizer counts the updates per parameter, without changing them.
type countingOptimizer struct {
	updates map[*State]int
}

func (o *countingOptimizer) Update(param *State) { o.updates[param]++ }

func TestSharedWeightsGradient(t *testing.T) {
	ctx := newTestContext()
	sequence := testSequence()
	layer := New(ctx.In("lstm"), sequence, hiddenSize).Done()
	loss := sequenceLoss(layer.Outputs())
	opt := &countingOptimizer{updates: make(map[*State]int)}
	loss.SetOptimizer(opt)
	graphtest.Run(loss)

	// Same network, with a separate copy of the weights per step.
	perStep := make([]*Weights, seqLen)
	var outputs []*Node
	h0, c0 := layer.InitialStates()
	h, c := h0, c0
	for step, x := range sequence {
		perStep[step] = copyWeights(layer.Weights())
		cell := NewCell(x, c, h, perStep[step])
		outputs = append(outputs, cell.Node())
		c, h = cell.C(), cell.H()
	}
	unshared := sequenceLoss(outputs)
	graphtest.Run(unshared)
	graphtest.RequireMatrixInDelta(t, loss.Output(), unshared.Output(), 1e-12)

	// The shared gradient is the sum of the per-step contributions.
	for ii, shared := range layer.Weights().All() {
		sum := mat.NewDense(shared.Rows(), shared.Cols(), nil)
		for step := range seqLen {
			sum.Add(sum, perStep[step].All()[ii].Grad())
		}
		graphtest.RequireMatrixInDelta(t, sum, shared.Grad(), 1e-10)
	}

	// And the optimizer is applied once per weight, not once per step.
	loss.Update()
	for _, shared := range layer.Weights().All() {
		assert.Equal(t, 1, opt.updates[shared.State()])
	}
	assert.Len(t, opt.updates, 12)
}

func TestNewWithWeightsNil(t *testing.T) {
	require.Panics(t, func() { NewWithWeights(testSequence(), nil) })
}
