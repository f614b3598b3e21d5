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

// Package losses have several standard losses that implement train.LossFn interface.
//
// Losses take the prediction and the target (or "labels"), both with the same shape, and return
// an element-wise loss matrix of that shape: the reduction to a scalar, if needed, happens
// outside the graph (see Sum and Mean). The training step seeds every element of the loss with
// a unit gradient, so the objective being minimized is the sum of the elements.
//
// No gradient flows into the target.
package losses

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/redtea-ml/redtea/graph"
	"gonum.org/v1/gonum/mat"
)

// LossFn is the interface used by train.Trainer to train models.
//
// It takes the model predictions and the targets, and returns the element-wise loss.
type LossFn func(prediction, target *Node) (loss *Node)

// TargetTolerance is the tolerance used by Logistic to decide whether a target is 1.
const TargetTolerance = 1e-6

const (
	// TypeLeastSquares is the name of LeastSquares, used by FromName.
	TypeLeastSquares = "least_squares"

	// TypeLogistic is the name of Logistic, used by FromName.
	TypeLogistic = "logistic"
)

// FromName returns the loss function with the given name: "least_squares" or "logistic".
// It panics for unknown names.
func FromName(name string) LossFn {
	switch name {
	case TypeLeastSquares:
		return LeastSquares
	case TypeLogistic:
		return Logistic
	}
	exceptions.Panicf("unknown loss %q: valid values are %q and %q", name, TypeLeastSquares, TypeLogistic)
	return nil
}

func assertSameShape(name string, prediction, target *Node) {
	if prediction == nil || target == nil {
		exceptions.Panicf("%s(): nil operand", name)
	}
	if !prediction.Shape().Equal(target.Shape()) {
		exceptions.Panicf("%s(prediction=%s, target=%s): shapes must be equal", name, prediction.Shape(), target.Shape())
	}
}

// elementLossOp implements the losses defined element by element.
type elementLossOp struct {
	nodeType NodeType
	// loss and derivative with respect to the prediction p, given the target t.
	loss, derivative func(p, t float64) float64
}

func (op *elementLossOp) Type() NodeType { return op.nodeType }

func (op *elementLossOp) Forward(node *Node) {
	target := node.Inputs()[1].Output()
	node.OutputBuffer().Apply(func(i, j int, p float64) float64 {
		return op.loss(p, target.At(i, j))
	}, node.Inputs()[0].Output())
}

func (op *elementLossOp) Backward(node *Node) {
	prediction, target := node.Inputs()[0], node.Inputs()[1].Output()
	predictionValues, incoming := prediction.Output(), node.Grad()
	grad := mat.NewDense(prediction.Rows(), prediction.Cols(), nil)
	grad.Apply(func(i, j int, p float64) float64 {
		return op.derivative(p, target.At(i, j)) * incoming.At(i, j)
	}, predictionValues)
	prediction.AddGrad(grad)
}

// LeastSquares returns the element-wise squared error (prediction - target)².
//
// Its gradient with respect to the prediction is 2*(prediction - target).
func LeastSquares(prediction, target *Node) *Node {
	assertSameShape("LeastSquares", prediction, target)
	op := &elementLossOp{
		nodeType: NodeTypeLeastSquares,
		loss: func(p, t float64) float64 {
			return (p - t) * (p - t)
		},
		derivative: func(p, t float64) float64 {
			return 2 * (p - t)
		},
	}
	return NewNode(op, prediction.Shape(), prediction, target)
}

// Logistic returns the element-wise logistic loss (binary cross-entropy) of a prediction that is
// a probability, and a target that is either 1 or 0: -log(prediction) where the target is 1
// (within TargetTolerance), and -log(1 - prediction) elsewhere.
//
// Predictions of exactly 0 or 1 lead to infinite losses and gradients, they are not clipped.
func Logistic(prediction, target *Node) *Node {
	assertSameShape("Logistic", prediction, target)
	op := &elementLossOp{
		nodeType: NodeTypeLogistic,
		loss: func(p, t float64) float64 {
			if isOne(t) {
				return -math.Log(p)
			}
			return -math.Log(1 - p)
		},
		derivative: func(p, t float64) float64 {
			if isOne(t) {
				return -1 / p
			}
			return 1 / (1 - p)
		},
	}
	return NewNode(op, prediction.Shape(), prediction, target)
}

func isOne(t float64) bool {
	return math.Abs(t-1) < TargetTolerance
}

// Sum reduces a loss matrix to the sum of its elements: the objective minimized by the
// training step.
func Sum(loss mat.Matrix) float64 {
	return mat.Sum(loss)
}

// Mean reduces a loss matrix to the mean of its elements, the usual value to report.
func Mean(loss mat.Matrix) float64 {
	rows, cols := loss.Dims()
	return mat.Sum(loss) / float64(rows*cols)
}
