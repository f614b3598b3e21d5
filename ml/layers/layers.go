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

// Package layers holds a collection of common modeling layers: the dense layer here, the
// recurrent LSTM in package lstm, and the activation functions in package activations.
//
// A small convention on naming: typically layers are nouns (like "Dense" (layer)), while
// computations are usually verbs ("Multiply (Mul)", "Split", etc.).
//
// Layers create their trainable weights in the given context.Context, under its current scope:
// use ctx.In("layer_name") to give each layer its own scope.
package layers

import (
	"github.com/gomlx/exceptions"
	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/layers/activations"
	"github.com/redtea-ml/redtea/types/shapes"
)

const (
	// ParamHiddenSize context hyperparameter defines the width of the hidden layers created by
	// DenseFromContext. The LSTM model of cmd/redtea also uses it.
	// The value should be an int.
	// The default is `8`.
	ParamHiddenSize = "hidden_size"

	// DefaultHiddenSize is the default value for ParamHiddenSize.
	DefaultHiddenSize = 8
)

// Dense adds a dense (affine) layer to the input: `input × weights + biases`, where weights is
// shaped [input.Cols, outputDim] and biases [1, outputDim], broadcast to every row of input.
//
// Both are variables named "weights" and "biases" created in the current scope of ctx, and initialized
// with its initializer.
//
// The returned node is a composite of type graph.NodeTypeDense: it shares the state of the
// final addition, which is its single input.
func Dense(ctx *context.Context, input *Node, outputDim int) *Node {
	if input == nil {
		exceptions.Panicf("Dense(): nil input")
	}
	if outputDim <= 0 {
		exceptions.Panicf("Dense(): invalid output dimension %d", outputDim)
	}
	weights := ctx.VariableWithShape("weights", shapes.Make(input.Cols(), outputDim))
	biases := ctx.VariableWithShape("biases", shapes.Make(1, outputDim))
	return DenseWithWeights(input, weights.Node(), biases.Node())
}

// DenseWithWeights is like Dense, but uses the given weights and biases nodes, instead of creating
// variables. biases can be nil, in which case no bias is added.
func DenseWithWeights(input, weights, biases *Node) *Node {
	output := Mul(input, weights)
	if biases != nil {
		output = Add(output, biases)
	}
	return Composite(NodeTypeDense, output)
}

// DenseFromContext adds a dense layer of width given by ParamHiddenSize, followed by the activation
// given by activations.ParamActivation.
func DenseFromContext(ctx *context.Context, input *Node) *Node {
	width := context.GetParamOr(ctx, ParamHiddenSize, DefaultHiddenSize)
	return activations.ApplyFromContext(ctx, Dense(ctx, input, width))
}
