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

package graph_test

import (
	"testing"

	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// countingOptimizer records how many times each parameter was updated, and applies plain
// gradient descent with learning rate 1.
type countingOptimizer struct {
	updates map[*State]int
}

func newCountingOptimizer() *countingOptimizer {
	return &countingOptimizer{updates: make(map[*State]int)}
}

func (o *countingOptimizer) Update(param *State) {
	o.updates[param]++
	param.Output().Sub(param.Output(), param.Grad())
}

func TestLeaves(t *testing.T) {
	value := graphtest.Dense([]float64{1, 2}, []float64{3, 4})
	v := Variable(value)
	value.Set(0, 0, 100)
	assert.Equal(t, 1.0, v.Output().At(0, 0), "Variable must copy its value")
	assert.True(t, v.Trainable())
	assert.True(t, v.IsLeaf())
	assert.Equal(t, NodeTypeVariable, v.Type())

	c := Constant(value)
	assert.False(t, c.Trainable())
	assert.Equal(t, NodeTypeConstant, c.Type())

	graphtest.RequireMatrixInDelta(t, mat.NewDense(2, 3, nil), Zeros(2, 3).Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 1, 1}), Ones(1, 3).Output(), 0)

	c.SetValue(graphtest.Dense([]float64{5, 6}, []float64{7, 8}))
	assert.Equal(t, 8.0, c.Output().At(1, 1))
	require.Panics(t, func() { c.SetValue(graphtest.Dense([]float64{5, 6})) })
	require.Panics(t, func() { Add(c, c).SetValue(value) })
	require.Panics(t, func() { Zeros(0, 3) })
}

func TestForwardMemoization(t *testing.T) {
	x := Constant(graphtest.Dense([]float64{1, 2}))
	y := Constant(graphtest.Dense([]float64{10, 20}))
	sum := Add(x, y)
	sum.Forward()
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{11, 22}), sum.Output(), 0)
	assert.True(t, sum.State().Forwarded())

	// Mutating the input storage doesn't change the cached value until a Reset.
	x.Output().Set(0, 0, 100)
	sum.Forward()
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{11, 22}), sum.Output(), 0)

	sum.Reset()
	assert.False(t, sum.State().Forwarded())
	assert.False(t, x.State().Forwarded())
	sum.Forward()
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{110, 22}), sum.Output(), 0)

	// Reset on a node never forwarded is a no-op.
	other := Add(x, y)
	other.Reset()
	assert.False(t, other.State().Forwarded())
}

func TestResetClearsGradients(t *testing.T) {
	x := Variable(graphtest.Dense([]float64{1, 2}))
	y := MulElt(x, x)
	graphtest.Run(y)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{2, 4}), x.Grad(), 0)
	y.Reset()
	graphtest.RequireMatrixInDelta(t, mat.NewDense(1, 2, nil), x.Grad(), 0)
	assert.False(t, x.State().Forwarded())
}

func TestSetOptimizerFirstBindWins(t *testing.T) {
	w1 := Variable(graphtest.Dense([]float64{1}))
	w2 := Variable(graphtest.Dense([]float64{2}))
	inner := Mul(w1, w2)
	opt1, opt2 := newCountingOptimizer(), newCountingOptimizer()
	inner.SetOptimizer(opt1)

	w3 := Variable(graphtest.Dense([]float64{3}))
	outer := Add(inner, w3)
	outer.SetOptimizer(opt2)

	assert.Same(t, opt1, inner.Optimizer())
	assert.Same(t, opt1, w1.Optimizer())
	assert.Same(t, opt1, w2.Optimizer())
	assert.Same(t, opt2, outer.Optimizer())
	assert.Same(t, opt2, w3.Optimizer())
}

func TestUpdateOncePerPass(t *testing.T) {
	w := Variable(graphtest.Dense([]float64{3}))
	c := Constant(graphtest.Dense([]float64{2}))
	// w is reached through three different paths.
	y := Add(Add(MulElt(w, c), w), MulElt(w, w))
	opt := newCountingOptimizer()
	y.SetOptimizer(opt)

	graphtest.Run(y)
	// d/dw (2w + w + w²) = 3 + 2w = 9
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{9}), w.Grad(), 1e-12)
	y.Update()
	assert.Equal(t, 1, opt.updates[w.State()])
	assert.Zero(t, opt.updates[c.State()], "constants are not trainable")
	assert.Equal(t, 3.0-9.0, w.Output().At(0, 0))
	assert.Equal(t, 0.0, w.Grad().At(0, 0), "gradient is cleared after the update")

	// Memoized until the next reset.
	y.Update()
	assert.Equal(t, 1, opt.updates[w.State()])
	y.Reset()
	assert.False(t, w.State().Updated())
}

func TestComposite(t *testing.T) {
	x := Variable(graphtest.Dense([]float64{1, 2}))
	tail := MulElt(x, x)
	composite := Composite(NodeTypeComposite, tail)
	assert.Same(t, tail.State(), composite.State())
	assert.Equal(t, []*Node{tail}, composite.Inputs())
	assert.Equal(t, tail.Shape(), composite.Shape())

	y := Add(composite, Constant(graphtest.Dense([]float64{1, 1})))
	graphtest.Run(y)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 4}), composite.Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{2, 5}), y.Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{2, 4}), x.Grad(), 1e-12)
	graphtest.CheckGradient(t, y, []*Node{x}, graphtest.GradientEpsilon)
}

func TestNodeString(t *testing.T) {
	a := Constant(graphtest.Dense([]float64{1, 2}, []float64{3, 4}))
	b := Variable(graphtest.Dense([]float64{1}, []float64{2}))
	assert.Equal(t, "Mul[2 1](Constant[2 2], Variable[2 1])", Mul(a, b).String())
	assert.Equal(t, "Softmax", NodeTypeSoftmax.String())
	assert.Equal(t, "NodeType(1000)", NodeType(1000).String())
}

func TestBuild(t *testing.T) {
	err := Build(func() {
		Mul(Zeros(2, 3), Zeros(2, 3))
	})
	require.Error(t, err)
	require.NoError(t, Build(func() { Mul(Zeros(2, 3), Zeros(3, 1)) }))
}
