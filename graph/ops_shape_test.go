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

func TestSplitConcatRoundTrip(t *testing.T) {
	value := graphtest.Dense([]float64{1, 2, 3}, []float64{4, 5, 6}, []float64{7, 8, 9}, []float64{10, 11, 12})
	for _, axis := range []Axis{RowAxis, ColAxis} {
		t.Run(axis.String(), func(t *testing.T) {
			x := Variable(value)
			parts := Split(x, axis)
			if axis == RowAxis {
				require.Len(t, parts, 4)
				assert.Equal(t, 1, parts[0].Rows())
			} else {
				require.Len(t, parts, 3)
				assert.Equal(t, 1, parts[0].Cols())
			}
			joined := Concat(parts, axis)
			weights := Constant(graphtest.Dense([]float64{1, 2, 3}, []float64{4, 5, 6}, []float64{7, 8, 9}, []float64{10, 11, 12}))
			loss := MulElt(joined, weights)
			graphtest.Run(loss)
			graphtest.RequireMatrixInDelta(t, value, joined.Output(), 0)

			// The gradient injected at the concatenation reaches each part unchanged, and
			// is scattered back into the source.
			graphtest.RequireMatrixInDelta(t, weights.Output(), x.Grad(), 0)
			graphtest.CheckGradient(t, loss, []*Node{x}, graphtest.GradientEpsilon)
		})
	}
}

func TestSplitAt(t *testing.T) {
	x := Variable(graphtest.Dense([]float64{1, 2, 3}, []float64{4, 5, 6}))
	row := SplitAt(x, RowAxis, 1)
	col := SplitAt(x, ColAxis, 2)
	sum := Add(Mul(col, row), Zeros(2, 3))
	graphtest.Run(sum)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{4, 5, 6}), row.Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{3}, []float64{6}), col.Output(), 0)
	graphtest.CheckGradient(t, sum, []*Node{x}, graphtest.GradientEpsilon)

	require.Panics(t, func() { SplitAt(x, RowAxis, 2) })
	require.Panics(t, func() { SplitAt(x, ColAxis, -1) })
	require.Panics(t, func() { SplitAt(x, Axis(7), 0) })
}

func TestConcat(t *testing.T) {
	a := Constant(graphtest.Dense([]float64{1}, []float64{2}))
	b := Constant(graphtest.Dense([]float64{3}, []float64{4}))
	horizontal := Concat([]*Node{a, b}, ColAxis)
	horizontal.Forward()
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{1, 3}, []float64{2, 4}), horizontal.Output(), 0)

	vertical := Concat([]*Node{a, b, a}, RowAxis)
	vertical.Forward()
	graphtest.RequireMatrixInDelta(t, mat.NewDense(6, 1, []float64{1, 2, 3, 4, 1, 2}), vertical.Output(), 0)

	require.Panics(t, func() { Concat(nil, RowAxis) })
	require.Panics(t, func() { Concat([]*Node{a, Zeros(1, 1)}, RowAxis) })
}
