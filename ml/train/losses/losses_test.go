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

package losses

import (
	"math"
	"testing"

	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeastSquares(t *testing.T) {
	prediction := Variable(graphtest.Dense([]float64{2}))
	target := Constant(graphtest.Dense([]float64{5}))
	loss := LeastSquares(prediction, target)
	graphtest.Run(loss)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{9}), loss.Output(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{-6}), prediction.Grad(), 0)
	graphtest.RequireMatrixInDelta(t, graphtest.Dense([]float64{0}), target.Grad(), 0)
	assert.Equal(t, NodeTypeLeastSquares, loss.Type())

	prediction = Variable(graphtest.Dense([]float64{0.5, -1, 3}, []float64{1, 1, 1}))
	target = Constant(graphtest.Dense([]float64{0, 1, 2}, []float64{4, -4, 1}))
	graphtest.CheckGradient(t, LeastSquares(prediction, target), []*Node{prediction}, graphtest.GradientEpsilon)

	require.Panics(t, func() { LeastSquares(prediction, Zeros(1, 3)) })
}

func TestLogistic(t *testing.T) {
	prediction := Variable(graphtest.Dense([]float64{0.9, 0.2}, []float64{0.3, 0.6}))
	target := Constant(graphtest.Dense([]float64{1, 0}, []float64{0, 1}))
	loss := Logistic(prediction, target)
	graphtest.Run(loss)
	want := graphtest.Dense(
		[]float64{-math.Log(0.9), -math.Log(0.8)},
		[]float64{-math.Log(0.7), -math.Log(0.6)})
	graphtest.RequireMatrixInDelta(t, want, loss.Output(), 1e-12)
	wantGrad := graphtest.Dense(
		[]float64{-1 / 0.9, 1 / 0.8},
		[]float64{1 / 0.7, -1 / 0.6})
	graphtest.RequireMatrixInDelta(t, wantGrad, prediction.Grad(), 1e-12)
	graphtest.CheckGradient(t, loss, []*Node{prediction}, graphtest.GradientEpsilon)

	require.Panics(t, func() { Logistic(prediction, Zeros(2, 1)) })
}

func TestReductions(t *testing.T) {
	m := graphtest.Dense([]float64{1, 2}, []float64{3, 6})
	assert.Equal(t, 12.0, Sum(m))
	assert.Equal(t, 3.0, Mean(m))
}

func TestFromName(t *testing.T) {
	p := Constant(graphtest.Dense([]float64{0.5}))
	assert.Equal(t, NodeTypeLeastSquares, FromName(TypeLeastSquares)(p, p).Type())
	assert.Equal(t, NodeTypeLogistic, FromName(TypeLogistic)(p, p).Type())
	require.Panics(t, func() { FromName("hinge") })
}
