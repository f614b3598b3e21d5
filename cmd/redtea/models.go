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

package main

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/graph/nanlogger"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/layers"
	"github.com/redtea-ml/redtea/ml/layers/lstm"
	"github.com/redtea-ml/redtea/ml/train"
	"github.com/redtea-ml/redtea/types/shapes"
)

// modelBuilders maps model names to functions that create the model for the given number of outputs.
// Layer outputs are traced with nanLogger, which can be nil.
var modelBuilders = map[string]func(outputDim int, nanLogger *nanlogger.NanLogger) train.ModelFn{
	"linear":    linearModel,
	"dense":     denseModel,
	"lstm":      lstmModel,
	"lstm_rows": lstmRowsModel,
}

// newModelFn returns the model function for the given model name.
func newModelFn(name string, outputDim int, nanLogger *nanlogger.NanLogger) (train.ModelFn, error) {
	builder, found := modelBuilders[name]
	if !found {
		names := make([]string, 0, len(modelBuilders))
		for known := range modelBuilders {
			names = append(names, known)
		}
		slices.Sort(names)
		return nil, errors.Errorf("unknown model %q, valid values are %q", name, names)
	}
	return builder(outputDim, nanLogger), nil
}

// linearModel is x·w + b, with w and b variables created explicitly.
func linearModel(outputDim int, nanLogger *nanlogger.NanLogger) train.ModelFn {
	return func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		x := inputs[0]
		ctx = ctx.In("linear")
		w := ctx.VariableWithShape("w", shapes.Make(x.Cols(), outputDim)).Node()
		b := ctx.VariableWithShape("b", shapes.Make(1, outputDim)).Node()
		output := Add(Mul(x, w), b)
		nanLogger.Trace(output, "linear")
		return []*Node{output}
	}
}

// denseModel is a hidden dense layer (width and activation configured by the context) followed by
// an output dense layer.
func denseModel(outputDim int, nanLogger *nanlogger.NanLogger) train.ModelFn {
	return func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		hidden := layers.DenseFromContext(ctx.In("hidden"), inputs[0])
		nanLogger.Trace(hidden, "hidden")
		output := layers.Dense(ctx.In("output"), hidden, outputDim)
		nanLogger.Trace(output, "output")
		return []*Node{output}
	}
}

// lstmModel takes each column of the input as one step of a sequence of scalars, runs them through
// an LSTM and feeds the concatenation of the outputs of all steps to a dense layer.
func lstmModel(outputDim int, nanLogger *nanlogger.NanLogger) train.ModelFn {
	return func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		hiddenSize := context.GetParamOr(ctx, layers.ParamHiddenSize, layers.DefaultHiddenSize)
		steps := Split(inputs[0], ColAxis)
		layer := lstm.New(ctx.In("lstm"), steps, hiddenSize).Done()
		for ii, cell := range layer.Cells() {
			nanLogger.Trace(cell.C(), "lstm", fmt.Sprintf("cell #%d", ii), "C")
			nanLogger.Trace(cell.H(), "lstm", fmt.Sprintf("cell #%d", ii), "H")
		}
		concat := Concat(layer.Outputs(), ColAxis)
		output := layers.Dense(ctx.In("output"), concat, outputDim)
		nanLogger.Trace(output, "output")
		return []*Node{output}
	}
}

// lstmRowsModel takes the rows of the batch, in order, as the steps of one sequence, and maps the
// output of each step to one row of predictions with a dense layer.
func lstmRowsModel(outputDim int, nanLogger *nanlogger.NanLogger) train.ModelFn {
	return func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		hiddenSize := context.GetParamOr(ctx, layers.ParamHiddenSize, layers.DefaultHiddenSize)
		steps := Split(inputs[0], RowAxis)
		layer := lstm.New(ctx.In("lstm"), steps, hiddenSize).Done()
		for ii, cell := range layer.Cells() {
			nanLogger.Trace(cell.H(), "lstm", fmt.Sprintf("cell #%d", ii), "H")
		}
		outputs := Concat(layer.Outputs(), RowAxis)
		output := layers.Dense(ctx.In("output"), outputs, outputDim)
		nanLogger.Trace(output, "output")
		return []*Node{output}
	}
}
