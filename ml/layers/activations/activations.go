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

// Package activations implements several common activations, and includes a generic Apply method to apply an
// activation by its type.
//
// There is also FromName to convert an activation name (string) to its type, and ApplyFromContext that applies
// an activation based on the hyperparameter ParamActivation defined in a context.
//
// All activations are shape preserving and element-wise, except Softmax, which is row-wise.
package activations

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ParamActivation context hyperparameter defines the activation to use, for models using ApplyFromContext.
	// Available values are: `none`, `relu`, `sigmoid`, `tanh` or `softmax`.
	// The default is `relu`.
	// See activations.TypeValues for complete list.
	ParamActivation = "activation"
)

// ApplyFromContext picks an activation function from the context using [ParamActivation] parameter,
// and applies it to x.
//
// It defaults to "relu".
func ApplyFromContext(ctx *context.Context, x *Node) *Node {
	activationName := context.GetParamOr(ctx, ParamActivation, "relu")
	return Apply(FromName(activationName), x)
}

// Apply the given activation type.
// The TypeNone activation is a no-op.
//
// See TypeValues for valid values.
func Apply(activation Type, x *Node) *Node {
	switch activation {
	case TypeNone:
		return x
	case TypeRelu:
		return Relu(x)
	case TypeSigmoid:
		return Sigmoid(x)
	case TypeTanh:
		return Tanh(x)
	case TypeSoftmax:
		return Softmax(x)
	default:
		exceptions.Panicf("Apply got invalid activation value %q: options are %v", activation, TypeValues())
	}
	return nil
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// And empty string is converted to TypeNone.
func FromName(activationName string) Type {
	if activationName == "" {
		return TypeNone
	}
	activation, err := TypeString(activationName)
	if err != nil {
		exceptions.Panicf("invalid activation name %q: options are %v", activationName, TypeValues())
	}
	return activation
}

// elementwiseOp implements the activations whose forward is an element-wise function, and whose
// derivative can be calculated from the output.
type elementwiseOp struct {
	nodeType NodeType
	fn       func(x float64) float64
	// derivative as a function of the input x and output y.
	derivative func(x, y float64) float64
}

func (op *elementwiseOp) Type() NodeType { return op.nodeType }

func (op *elementwiseOp) Forward(node *Node) {
	node.OutputBuffer().Apply(func(_, _ int, x float64) float64 {
		return op.fn(x)
	}, node.Inputs()[0].Output())
}

func (op *elementwiseOp) Backward(node *Node) {
	x := node.Inputs()[0]
	xValues, output := x.Output(), node.Output()
	grad := mat.NewDense(x.Rows(), x.Cols(), nil)
	grad.Apply(func(i, j int, incoming float64) float64 {
		return incoming * op.derivative(xValues.At(i, j), output.At(i, j))
	}, node.Grad())
	x.AddGrad(grad)
}

func elementwise(x *Node, op *elementwiseOp) *Node {
	if x == nil {
		exceptions.Panicf("%s(): nil operand", op.nodeType)
	}
	return NewNode(op, x.Shape(), x)
}

// Relu activation function. It returns max(x, 0), and is commonly used as an activation function in neural networks.
//
// The gradient passes through where the output is > 0.
func Relu(x *Node) *Node {
	return elementwise(x, &elementwiseOp{
		nodeType: NodeTypeRelu,
		fn:       func(x float64) float64 { return max(x, 0) },
		derivative: func(_, y float64) float64 {
			if y > 0 {
				return 1
			}
			return 0
		},
	})
}

// Sigmoid returns the logistic function 1/(1+e^-x).
func Sigmoid(x *Node) *Node {
	return elementwise(x, &elementwiseOp{
		nodeType:   NodeTypeSigmoid,
		fn:         func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) },
		derivative: func(_, y float64) float64 { return y * (1 - y) },
	})
}

// Tanh returns the hyperbolic tangent, calculated as (1 - e^-2x)/(1 + e^-2x) for x >= 0 and from
// the symmetric expression for x < 0, so the exponential never overflows.
func Tanh(x *Node) *Node {
	return elementwise(x, &elementwiseOp{
		nodeType:   NodeTypeTanh,
		fn:         stableTanh,
		derivative: func(_, y float64) float64 { return 1 - y*y },
	})
}

func stableTanh(x float64) float64 {
	if x < 0 {
		return -stableTanh(-x)
	}
	e := math.Exp(-2 * x)
	return (1 - e) / (1 + e)
}

// softmaxOp caches, per row, the exponentials (after subtracting the row max), their sum and the
// index of the row max.
type softmaxOp struct {
	exps   *mat.Dense
	sums   []float64
	argMax []int
}

func (op *softmaxOp) Type() NodeType { return NodeTypeSoftmax }

func (op *softmaxOp) Forward(node *Node) {
	x := node.Inputs()[0].Output()
	out := node.OutputBuffer()
	for row := range node.Rows() {
		xRow, expRow := x.RawRowView(row), op.exps.RawRowView(row)
		maxIdx := floats.MaxIdx(xRow)
		rowMax := xRow[maxIdx]
		for col, v := range xRow {
			expRow[col] = math.Exp(v - rowMax)
		}
		op.argMax[row] = maxIdx
		op.sums[row] = floats.Sum(expRow)
		floats.ScaleTo(out.RawRowView(row), 1/op.sums[row], expRow)
	}
}

// Backward uses only the diagonal of the softmax Jacobian, and zeroes the gradient of the
// row's argmax entry.
func (op *softmaxOp) Backward(node *Node) {
	x := node.Inputs()[0]
	incoming := node.Grad()
	grad := mat.NewDense(x.Rows(), x.Cols(), nil)
	for row := range node.Rows() {
		sum := op.sums[row]
		expRow, inRow, gradRow := op.exps.RawRowView(row), incoming.RawRowView(row), grad.RawRowView(row)
		for col, e := range expRow {
			if col == op.argMax[row] {
				continue
			}
			gradRow[col] = e * inRow[col] * (1/sum - e/(sum*sum))
		}
	}
	x.AddGrad(grad)
}

// Softmax normalizes each row of x to a probability distribution: exp(x_ij - max_i) / sum_j(exp(x_ij - max_i)).
//
// Its gradient is a simplification of the softmax Jacobian: each entry only receives its
// diagonal term, and the entry with the largest value of each row receives no gradient.
func Softmax(x *Node) *Node {
	if x == nil {
		exceptions.Panicf("Softmax(): nil operand")
	}
	op := &softmaxOp{
		exps:   mat.NewDense(x.Rows(), x.Cols(), nil),
		sums:   make([]float64, x.Rows()),
		argMax: make([]int, x.Rows()),
	}
	return NewNode(op, x.Shape(), x)
}

// SoftmaxArgMax returns the index of the largest entry of each row, as cached by the last forward
// pass of a node created by Softmax. It panics for other nodes.
//
// The returned slice is owned by the node, and is overwritten by the next forward pass.
func SoftmaxArgMax(softmax *Node) []int {
	op, ok := softmax.Operator().(*softmaxOp)
	if !ok {
		exceptions.Panicf("SoftmaxArgMax(): node %s is not a Softmax", softmax)
	}
	return op.argMax
}
