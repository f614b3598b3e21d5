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

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// This file holds the elementary binary operators.

type addOp struct{ broadcast bool }

func (op *addOp) Type() NodeType { return NodeTypeAdd }

func (op *addOp) Forward(node *Node) {
	a, b := node.inputs[0].Output(), node.inputs[1].Output()
	out := node.OutputBuffer()
	if !op.broadcast {
		out.Add(a, b)
		return
	}
	bias := b.RawRowView(0)
	for row := range node.Rows() {
		floats.AddTo(out.RawRowView(row), a.RawRowView(row), bias)
	}
}

func (op *addOp) Backward(node *Node) {
	grad := node.Grad()
	node.inputs[0].AddGrad(grad)
	if !op.broadcast {
		node.inputs[1].AddGrad(grad)
		return
	}
	// Reduce the broadcast rows.
	sum := mat.NewDense(1, node.Cols(), nil)
	sumRow := sum.RawRowView(0)
	for row := range node.Rows() {
		floats.Add(sumRow, grad.RawRowView(row))
	}
	node.inputs[1].AddGrad(sum)
}

// Add returns the element-wise sum a+b.
//
// If b has a single row and a has more than one, b is broadcast to every row of a (as in
// a bias add). The gradient of b is then the sum of the incoming gradient over the rows.
//
// It panics if the number of columns differ, or if the rows differ and b is not a single row.
func Add(a, b *Node) *Node {
	if a == nil || b == nil {
		exceptions.Panicf("Add(): nil operand")
	}
	if a.Cols() != b.Cols() {
		exceptions.Panicf("Add(%s, %s): number of columns differ", a.Shape(), b.Shape())
	}
	broadcast := a.Rows() != b.Rows()
	if broadcast && b.Rows() != 1 {
		exceptions.Panicf("Add(%s, %s): number of rows differ and the second operand is not a single row", a.Shape(), b.Shape())
	}
	return NewNode(&addOp{broadcast: broadcast}, a.Shape(), a, b)
}

type mulOp struct{}

func (mulOp) Type() NodeType { return NodeTypeMul }

func (mulOp) Forward(node *Node) {
	node.OutputBuffer().Mul(node.inputs[0].Output(), node.inputs[1].Output())
}

func (mulOp) Backward(node *Node) {
	grad := node.Grad()
	a, b := node.inputs[0], node.inputs[1]

	gradA := mat.NewDense(a.Rows(), a.Cols(), nil)
	gradA.Mul(grad, b.Output().T())
	gradB := mat.NewDense(b.Rows(), b.Cols(), nil)
	gradB.Mul(a.Output().T(), grad)

	a.AddGrad(gradA)
	b.AddGrad(gradB)
}

// Mul returns the matrix product a×b.
//
// It panics if the number of columns of a differs from the number of rows of b.
func Mul(a, b *Node) *Node {
	if a == nil || b == nil {
		exceptions.Panicf("Mul(): nil operand")
	}
	if a.Cols() != b.Rows() {
		exceptions.Panicf("Mul(%s, %s): columns of the left operand must match rows of the right operand", a.Shape(), b.Shape())
	}
	return NewNode(mulOp{}, shapes.Make(a.Rows(), b.Cols()), a, b)
}

type mulEltOp struct{}

func (mulEltOp) Type() NodeType { return NodeTypeMulElt }

func (mulEltOp) Forward(node *Node) {
	node.OutputBuffer().MulElem(node.inputs[0].Output(), node.inputs[1].Output())
}

func (mulEltOp) Backward(node *Node) {
	grad := node.Grad()
	a, b := node.inputs[0], node.inputs[1]

	gradA := mat.NewDense(a.Rows(), a.Cols(), nil)
	gradA.MulElem(grad, b.Output())
	gradB := mat.NewDense(b.Rows(), b.Cols(), nil)
	gradB.MulElem(grad, a.Output())

	a.AddGrad(gradA)
	b.AddGrad(gradB)
}

// MulElt returns the element-wise (Hadamard) product of a and b.
//
// It panics if the shapes differ.
func MulElt(a, b *Node) *Node {
	if a == nil || b == nil {
		exceptions.Panicf("MulElt(): nil operand")
	}
	if !a.Shape().Equal(b.Shape()) {
		exceptions.Panicf("MulElt(%s, %s): shapes must be equal", a.Shape(), b.Shape())
	}
	return NewNode(mulEltOp{}, a.Shape(), a, b)
}
