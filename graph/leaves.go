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
	"gonum.org/v1/gonum/mat"
)

// leafOp is the operator of Variable and Constant nodes: forward and backward are no-ops, the
// output is set at construction (or with SetValue) and kept across passes.
type leafOp struct {
	nodeType NodeType
}

func (op *leafOp) Type() NodeType { return op.nodeType }
func (op *leafOp) Forward(*Node)  {}
func (op *leafOp) Backward(*Node) {}

func newLeaf(nodeType NodeType, value mat.Matrix) *Node {
	if value == nil {
		exceptions.Panicf("%s: nil value", nodeType)
	}
	rows, cols := value.Dims()
	node := NewNode(&leafOp{nodeType: nodeType}, shapes.Make(rows, cols))
	node.state.outputBuffer().Copy(value)
	return node
}

// Variable creates a trainable leaf holding a copy of value. Its output is mutated in place
// by the bound optimizer on Update.
func Variable(value mat.Matrix) *Node {
	return newLeaf(NodeTypeVariable, value)
}

// Constant creates a fixed (non-trainable) leaf holding a copy of value.
// Use Node.SetValue to feed new values of the same shape, e.g. a new batch.
func Constant(value mat.Matrix) *Node {
	return newLeaf(NodeTypeConstant, value)
}

// Zeros creates a Constant filled with zeros.
func Zeros(rows, cols int) *Node {
	shape := shapes.Make(rows, cols)
	return Constant(mat.NewDense(shape.Rows, shape.Cols, nil))
}

// Ones creates a Constant filled with ones.
func Ones(rows, cols int) *Node {
	return Constant(onesLike(shapes.Make(rows, cols)))
}

// SetValue copies value into the output of a leaf node (Variable or Constant).
//
// It panics if the node is not a leaf or if the shape differs. Nodes that consumed the old value
// are only recomputed after a Reset.
func (n *Node) SetValue(value mat.Matrix) {
	if !n.IsLeaf() {
		exceptions.Panicf("SetValue(): node %s is not a leaf", n)
	}
	n.state.SetOutput(value)
}

func onesLike(shape shapes.Shape) *mat.Dense {
	data := make([]float64, shape.Size())
	for ii := range data {
		data[ii] = 1
	}
	return mat.NewDense(shape.Rows, shape.Cols, data)
}
