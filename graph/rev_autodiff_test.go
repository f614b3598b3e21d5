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
)

func TestSeed(t *testing.T) {
	x := Constant(graphtest.Dense([]float64{1, 2}, []float64{3, 4}))
	Seed(x)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 1}, []float64{1, 1}), x.Grad(), 0)
	Seed(x)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{2, 2}, []float64{2, 2}), x.Grad(), 0)
}

func TestBackwardSharedWeights(t *testing.T) {
	// The same weight is used by several consumers at the same depth, as in an unrolled
	// recurrent layer.
	w := Variable(graphtest.Dense([]float64{2, 0}, []float64{1, 3}))
	inputs := []*Node{
		Constant(graphtest.Dense([]float64{1, 0})),
		Constant(graphtest.Dense([]float64{0, 1})),
		Constant(graphtest.Dense([]float64{1, 1})),
	}
	steps := make([]*Node, len(inputs))
	for ii, x := range inputs {
		steps[ii] = Mul(x, w)
	}
	loss := Concat(steps, RowAxis)
	graphtest.Run(loss)

	// grad(w) = sum over steps of xᵀ × ones.
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{2, 2}, []float64{2, 2}), w.Grad(), 0)
	graphtest.CheckGradient(t, MulElt(loss, loss), []*Node{w}, graphtest.GradientEpsilon)
}

func TestBackwardChainOfSharedStates(t *testing.T) {
	// h_{t+1} = h_t × w, so w is consumed at every depth of the chain.
	w := Variable(graphtest.Dense([]float64{0.5, 0.1}, []float64{-0.2, 0.9}))
	h := Constant(graphtest.Dense([]float64{1, 2}))
	node := h
	for range 4 {
		node = Mul(node, w)
	}
	loss := MulElt(node, node)
	graphtest.CheckGradient(t, loss, []*Node{w, h}, graphtest.GradientEpsilon)
}

func TestBackwardMixedDepths(t *testing.T) {
	// a is consumed at depth 1 (directly by the root) and at depth 2 (through b).
	x := Variable(graphtest.Dense([]float64{0.5, -1.5}))
	c := Constant(graphtest.Dense([]float64{3, 4}))
	a := MulElt(x, x)
	b := MulElt(a, c)
	root := Add(a, b)
	graphtest.Run(root)
	// d/dx (x² + c·x²) = 2x(1+c)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{4, -15}), x.Grad(), 1e-12)
	graphtest.CheckGradient(t, root, []*Node{x}, graphtest.GradientEpsilon)
}

func TestBackwardComposite(t *testing.T) {
	x := Variable(graphtest.Dense([]float64{1, 2}))
	tail := MulElt(x, x)
	// Two different nodes aliasing the same state are consumed by the root.
	first := Composite(NodeTypeComposite, tail)
	second := Composite(NodeTypeComposite, tail)
	root := Add(first, second)
	graphtest.Run(root)
	// Both contributions landed in the shared state and were pushed down once: 2 * 2x.
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{4, 8}), x.Grad(), 1e-12)
	assert.Zero(t, tail.Grad().At(0, 0), "tail gradient is cleared after its backward")
}

func TestBackwardNilRoot(t *testing.T) {
	require.Panics(t, func() { Backward(nil) })
	require.Panics(t, func() { Seed(nil) })
}
