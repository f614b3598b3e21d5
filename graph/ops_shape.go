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
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/mat"
)

// Axis selects the direction of the shape operators Split, SplitAt and Concat.
type Axis int

const (
	// RowAxis splits into (or concatenates) single rows, stacked vertically.
	RowAxis Axis = iota

	// ColAxis splits into (or concatenates) single columns, stacked horizontally.
	ColAxis
)

// String implements fmt.Stringer.
func (axis Axis) String() string {
	switch axis {
	case RowAxis:
		return "RowAxis"
	case ColAxis:
		return "ColAxis"
	}
	return fmt.Sprintf("Axis(%d)", int(axis))
}

func (axis Axis) assertValid(method string) {
	if axis != RowAxis && axis != ColAxis {
		exceptions.Panicf("%s: invalid axis %s", method, axis)
	}
}

// block returns the view of m holding the index-th block of the given size along the axis.
func (axis Axis) block(m *mat.Dense, index int, size shapes.Shape) *mat.Dense {
	if axis == RowAxis {
		return m.Slice(index*size.Rows, (index+1)*size.Rows, 0, size.Cols).(*mat.Dense)
	}
	return m.Slice(0, size.Rows, index*size.Cols, (index+1)*size.Cols).(*mat.Dense)
}

type splitOp struct {
	axis  Axis
	index int
}

func (op *splitOp) Type() NodeType { return NodeTypeSplit }

func (op *splitOp) Forward(node *Node) {
	node.OutputBuffer().Copy(op.axis.block(node.inputs[0].Output(), op.index, node.Shape()))
}

func (op *splitOp) Backward(node *Node) {
	x := node.inputs[0]
	scattered := mat.NewDense(x.Rows(), x.Cols(), nil)
	op.axis.block(scattered, op.index, node.Shape()).Copy(node.Grad())
	x.AddGrad(scattered)
}

// SplitAt returns the single row (RowAxis) or single column (ColAxis) of x at the given index.
//
// The gradient is scattered back into the corresponding row or column of x.
func SplitAt(x *Node, axis Axis, index int) *Node {
	if x == nil {
		exceptions.Panicf("SplitAt(): nil operand")
	}
	axis.assertValid("SplitAt()")
	var shape shapes.Shape
	var dim int
	if axis == RowAxis {
		shape, dim = shapes.Make(1, x.Cols()), x.Rows()
	} else {
		shape, dim = shapes.Make(x.Rows(), 1), x.Cols()
	}
	if index < 0 || index >= dim {
		exceptions.Panicf("SplitAt(%s, %s, %d): index out of range [0, %d)", x.Shape(), axis, index, dim)
	}
	return NewNode(&splitOp{axis: axis, index: index}, shape, x)
}

// Split x into one node per row (RowAxis) or per column (ColAxis), in order.
func Split(x *Node, axis Axis) []*Node {
	if x == nil {
		exceptions.Panicf("Split(): nil operand")
	}
	axis.assertValid("Split()")
	dim := x.Rows()
	if axis == ColAxis {
		dim = x.Cols()
	}
	parts := make([]*Node, dim)
	for ii := range parts {
		parts[ii] = SplitAt(x, axis, ii)
	}
	return parts
}

type concatOp struct {
	axis Axis
}

func (op *concatOp) Type() NodeType { return NodeTypeConcat }

func (op *concatOp) Forward(node *Node) {
	out := node.OutputBuffer()
	for ii, input := range node.inputs {
		op.axis.block(out, ii, input.Shape()).Copy(input.Output())
	}
}

func (op *concatOp) Backward(node *Node) {
	grad := node.Grad()
	for ii, input := range node.inputs {
		input.AddGrad(op.axis.block(grad, ii, input.Shape()))
	}
}

// Concat stacks equally shaped nodes along the axis: vertically for RowAxis, horizontally for ColAxis.
//
// The gradient is sliced along the same axis and routed unchanged to each input.
// It panics if nodes is empty or if their shapes differ.
func Concat(nodes []*Node, axis Axis) *Node {
	axis.assertValid("Concat()")
	if len(nodes) == 0 {
		exceptions.Panicf("Concat(): no nodes to concatenate")
	}
	for ii, node := range nodes {
		if node == nil {
			exceptions.Panicf("Concat(): node #%d is nil", ii)
		}
		if !node.Shape().Equal(nodes[0].Shape()) {
			exceptions.Panicf("Concat(): node #%d has shape %s, but node #0 has shape %s", ii, node.Shape(), nodes[0].Shape())
		}
	}
	blockShape := nodes[0].Shape()
	shape := shapes.Make(blockShape.Rows*len(nodes), blockShape.Cols)
	if axis == ColAxis {
		shape = shapes.Make(blockShape.Rows, blockShape.Cols*len(nodes))
	}
	return NewNode(&concatOp{axis: axis}, shape, nodes...)
}
