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

// Package initializers include several weight initializers, to be used with context.
// They implement the VariableInitializer type, used by context.Context.WithInitializer.
package initializers

import (
	"math"
	"math/rand/v2"

	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/mat"
)

// VariableInitializer returns the initial value of a variable of the given shape, drawing
// random numbers from rng. rng is owned by the context creating the variable.
type VariableInitializer func(rng *rand.Rand, shape shapes.Shape) *mat.Dense

var (
	// Zero initializes variables with zero.
	Zero VariableInitializer = func(_ *rand.Rand, shape shapes.Shape) *mat.Dense {
		return mat.NewDense(shape.Rows, shape.Cols, nil)
	}

	// One initializes variables with one.
	One VariableInitializer = func(_ *rand.Rand, shape shapes.Shape) *mat.Dense {
		return fill(shape, func() float64 { return 1 })
	}
)

func fill(shape shapes.Shape, fn func() float64) *mat.Dense {
	data := make([]float64, shape.Size())
	for ii := range data {
		data[ii] = fn()
	}
	return mat.NewDense(shape.Rows, shape.Cols, data)
}

// Uniform returns an initializer that generates random uniform values from [minValue, maxValue).
func Uniform(minValue, maxValue float64) VariableInitializer {
	return func(rng *rand.Rand, shape shapes.Shape) *mat.Dense {
		return fill(shape, func() float64 {
			return minValue + rng.Float64()*(maxValue-minValue)
		})
	}
}

// Normal returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func Normal(stddev float64) VariableInitializer {
	return func(rng *rand.Rand, shape shapes.Shape) *mat.Dense {
		return fill(shape, func() float64 {
			return rng.NormFloat64() * stddev
		})
	}
}

// GlorotUniform is a Glorot uniform initializer, also called Xavier uniform initializer.
//
// It draws samples from a uniform distribution within `[-limit, limit]`, where
// `limit = sqrt(3 / ((fan_in + fan_out)/2))`, with fan_in the number of rows and fan_out the number
// of columns of the variable -- the convention of the weights of a dense layer.
var GlorotUniform VariableInitializer = func(rng *rand.Rand, shape shapes.Shape) *mat.Dense {
	scale := max(1.0, float64(shape.Rows+shape.Cols)/2.0)
	limit := math.Sqrt(3.0 / scale)
	return Uniform(-limit, limit)(rng, shape)
}
