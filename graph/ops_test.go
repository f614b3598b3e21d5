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
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	a := Variable(graphtest.Dense([]float64{1, 2, 3}, []float64{4, 5, 6}))
	b := Variable(graphtest.Dense([]float64{10, 20, 30}, []float64{40, 50, 60}))
	sum := Add(a, b)
	graphtest.Run(sum)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{11, 22, 33}, []float64{44, 55, 66}), sum.Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 1, 1}, []float64{1, 1, 1}), a.Grad(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 1, 1}, []float64{1, 1, 1}), b.Grad(), 0)
	graphtest.CheckGradient(t, MulElt(sum, sum), []*Node{a, b}, graphtest.GradientEpsilon)
}

func TestAddBroadcast(t *testing.T) {
	x := Variable(graphtest.Dense([]float64{1, 2}, []float64{3, 4}, []float64{5, 6}))
	bias := Variable(graphtest.Dense([]float64{10, 100}))
	sum := Add(x, bias)
	graphtest.Run(sum)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{11, 102}, []float64{13, 104}, []float64{15, 106}), sum.Output(), 0)
	// The broadcast dimension is reduced in the gradient.
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{3, 3}), bias.Grad(), 0)
	graphtest.CheckGradient(t, MulElt(sum, sum), []*Node{x, bias}, graphtest.GradientEpsilon)

	require.Panics(t, func() { Add(x, Zeros(3, 3)) })
	require.Panics(t, func() { Add(x, Zeros(2, 2)) })
	require.Panics(t, func() { Add(bias, x) }, "only the second operand is broadcast")
}

func TestMul(t *testing.T) {
	a := Variable(graphtest.Dense([]float64{1, 2, 3}, []float64{4, 5, 6}))
	b := Variable(graphtest.Dense([]float64{1, 0}, []float64{0, 1}, []float64{1, -1}))
	product := Mul(a, b)
	graphtest.Run(product)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{4, -1}, []float64{10, -1}), product.Output(), 0)
	// grad(a) = ones × bᵀ, grad(b) = aᵀ × ones.
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 1, 0}, []float64{1, 1, 0}), a.Grad(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{5, 5}, []float64{7, 7}, []float64{9, 9}), b.Grad(), 0)
	graphtest.CheckGradient(t, MulElt(product, product), []*Node{a, b}, graphtest.GradientEpsilon)

	require.Panics(t, func() { Mul(a, a) })
	require.Equal(t, 2, product.Rows())
	require.Equal(t, 2, product.Cols())
}

func TestMulElt(t *testing.T) {
	a := Variable(graphtest.Dense([]float64{1, 2}, []float64{3, 4}))
	b := Variable(graphtest.Dense([]float64{-1, 0.5}, []float64{2, 3}))
	product := MulElt(a, b)
	graphtest.Run(product)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{-1, 1}, []float64{6, 12}), product.Output(), 0)
	graphtest.RequireMatrixInDelta(t, b.Output(), a.Grad(), 0)
	graphtest.RequireMatrixInDelta(t, a.Output(), b.Grad(), 0)
	graphtest.CheckGradient(t, Mul(product, b), []*Node{a, b}, graphtest.GradientEpsilon)

	require.Panics(t, func() { MulElt(a, Zeros(2, 1)) })
}
