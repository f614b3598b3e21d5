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

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"testing"

	"github.com/redtea-ml/redtea/graph"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is the default tolerance used when comparing matrices.
const Epsilon = 1e-6

// GradientEpsilon is the default tolerance used by CheckGradient.
const GradientEpsilon = 1e-5

// Dense creates a matrix from its rows. All rows must have the same length.
func Dense(rows ...[]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		panic("graphtest.Dense(): empty matrix")
	}
	data := make([]float64, 0, len(rows)*len(rows[0]))
	for ii, row := range rows {
		if len(row) != len(rows[0]) {
			panic(fmt.Sprintf("graphtest.Dense(): row #%d has %d columns, row #0 has %d", ii, len(row), len(rows[0])))
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), len(rows[0]), data)
}

// RequireMatrixInDelta fails the test if got and want have different shapes or if any element
// differs by more than delta.
func RequireMatrixInDelta(t *testing.T, want, got mat.Matrix, delta float64, msgAndArgs ...any) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	if !mat.EqualApprox(want, got, delta) {
		require.Failf(t, "matrices differ",
			"wanted\n%v\ngot\n%v\n%s", mat.Formatted(want, mat.Squeeze()), mat.Formatted(got, mat.Squeeze()), fmt.Sprint(msgAndArgs...))
	}
}

// Run executes one full pass over root: reset, forward, seed (ones) and the graph-wide backward.
// Leaves are left holding their gradients.
//
// Subgraphs shared with roots of previous passes are reset as well.
func Run(root *graph.Node) {
	root.Forward()
	root.Reset()
	root.Forward()
	graph.Seed(root)
	graph.Backward(root)
}

// CheckGradient compares the gradient of sum(root) with respect to each of params, computed by
// the backward pass, with a numerical gradient from central finite differences.
//
// params must be leaves (Variable or Constant) reachable from root. Their values are restored
// at the end.
func CheckGradient(t *testing.T, root *graph.Node, params []*graph.Node, tolerance float64) {
	t.Helper()
	Run(root)
	analytic := make([]*mat.Dense, len(params))
	for ii, param := range params {
		require.Truef(t, param.IsLeaf(), "CheckGradient: param #%d (%s) is not a leaf", ii, param)
		analytic[ii] = mat.DenseCopyOf(param.Grad())
	}

	for ii, param := range params {
		original := mat.DenseCopyOf(param.Output())
		rows, cols := original.Dims()
		objective := func(x []float64) float64 {
			param.SetValue(mat.NewDense(rows, cols, x))
			root.Reset()
			root.Forward()
			return mat.Sum(root.Output())
		}
		x := make([]float64, rows*cols)
		for row := range rows {
			copy(x[row*cols:(row+1)*cols], original.RawRowView(row))
		}
		numeric := fd.Gradient(nil, objective, x, &fd.Settings{Formula: fd.Central, Step: 1e-6})
		param.SetValue(original)
		RequireMatrixInDelta(t, mat.NewDense(rows, cols, numeric), analytic[ii], tolerance,
			fmt.Sprintf("gradient of param #%d (%s)", ii, param))
	}
	root.Reset()
}
