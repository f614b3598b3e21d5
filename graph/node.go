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
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/mat"
)

// Operator is the variant of a Node: it defines the forward formula and the backward
// (gradient) formula of the operation.
//
// Forward is called after all inputs were forwarded, and should write the result into
// Node.OutputBuffer. Backward reads Node.Grad and should add the contribution of each
// input with Node.AddGrad on the inputs. Clearing the node's own gradient is handled by Node.
type Operator interface {
	Type() NodeType
	Forward(node *Node)
	Backward(node *Node)
}

// Optimizer is the update rule bound to the nodes of a graph. It is called once per training
// step for each trainable State, and it should update param.Output() in place using param.Grad().
//
// Implementations are in package optimizers.
type Optimizer interface {
	Update(param *State)
}

// Node is a vertex of the computation graph.
//
// A Node holds a handle to exactly one State, which may be shared with other Nodes (see Composite),
// the ordered list of its inputs and an optional bound Optimizer.
type Node struct {
	state     *State
	inputs    []*Node
	op        Operator
	optimizer Optimizer
}

// NewNode creates a node for the given operator. The operator's output will have the given shape.
//
// This is used by implementations of new ops. The ops are expected to validate the shapes
// of the inputs before calling NewNode.
func NewNode(op Operator, shape shapes.Shape, inputs ...*Node) *Node {
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s: input #%d is nil", op.Type(), ii)
		}
	}
	return &Node{
		state:  newState(shape),
		inputs: slices.Clone(inputs),
		op:     op,
	}
}

// Type identifies the operation performed by the node.
func (n *Node) Type() NodeType {
	if n == nil || n.op == nil {
		return NodeTypeInvalid
	}
	return n.op.Type()
}

// Operator returns the operator (variant) of the node.
func (n *Node) Operator() Operator { return n.op }

// State returns the handle to the node's state. Nodes that alias the same quantity return the same pointer.
func (n *Node) State() *State { return n.state }

// Shape of the node's output.
func (n *Node) Shape() shapes.Shape { return n.state.shape }

// Rows of the node's output.
func (n *Node) Rows() int { return n.state.shape.Rows }

// Cols of the node's output.
func (n *Node) Cols() int { return n.state.shape.Cols }

// Inputs are the nodes that are direct inputs to this node.
func (n *Node) Inputs() []*Node { return n.inputs }

// Output returns the cached output of the last forward pass. It's nil if the node was never forwarded.
func (n *Node) Output() *mat.Dense { return n.state.output }

// OutputBuffer returns the matrix where an Operator should write the forward result.
// It is reused across passes.
func (n *Node) OutputBuffer() *mat.Dense { return n.state.outputBuffer() }

// Grad returns the gradient accumulated in the node's state.
func (n *Node) Grad() *mat.Dense { return n.state.grad }

// AddGrad accumulates delta into the node's gradient.
func (n *Node) AddGrad(delta mat.Matrix) { n.state.AddGrad(delta) }

// ClearGrad zeroes the node's gradient.
func (n *Node) ClearGrad() { n.state.ClearGrad() }

// Optimizer bound to this node, or nil.
func (n *Node) Optimizer() Optimizer { return n.optimizer }

// Trainable returns whether the node is a leaf updated by the optimizer (a Variable).
func (n *Node) Trainable() bool { return n.Type() == NodeTypeVariable }

// IsLeaf returns whether the node has no inputs (Variable or Constant).
func (n *Node) IsLeaf() bool { return len(n.inputs) == 0 }

// SetOptimizer binds opt to this node and, recursively, to every reachable node that doesn't
// have one bound yet. A node already bound is left untouched (and not recursed into).
func (n *Node) SetOptimizer(opt Optimizer) {
	if n.optimizer != nil {
		return
	}
	n.optimizer = opt
	for _, input := range n.inputs {
		input.SetOptimizer(opt)
	}
}

// Reset prepares the graph for a new pass. If the node was not forwarded since the last reset
// it is a no-op. Otherwise, it resets all inputs, clears the flags and zeroes the gradient.
//
// Inputs are reset before the flags are cleared: aliased nodes share a State, and clearing it
// first would stop the recursion into the aliased subgraph.
func (n *Node) Reset() {
	if !n.state.forwarded {
		return
	}
	for _, input := range n.inputs {
		input.Reset()
	}
	n.state.forwarded = false
	n.state.updated = false
	n.state.ClearGrad()
}

// Forward computes the node's output, forwarding its inputs first. The result is memoized
// until the next Reset.
func (n *Node) Forward() {
	if n.state.forwarded {
		return
	}
	for _, input := range n.inputs {
		input.Forward()
	}
	n.op.Forward(n)
	n.state.forwarded = true
}

// Backward pushes the node's accumulated gradient into its inputs, using the operator's gradient
// formula, and then clears its own gradient -- so calling it again is side-effect free.
//
// It doesn't recurse: use the package function Backward to schedule the whole graph.
//
// Leaves keep their gradient (it's consumed by Update), and composites are no-ops, since their
// gradient already lives in the State shared with their tail.
func (n *Node) Backward() {
	if n.IsLeaf() || n.isComposite() {
		return
	}
	n.op.Backward(n)
	n.state.ClearGrad()
}

// Update applies the bound optimizer to every trainable leaf reachable from this node, exactly
// once per pass. Inputs are updated first.
func (n *Node) Update() {
	if n.state.updated {
		return
	}
	for _, input := range n.inputs {
		input.Update()
	}
	if n.Trainable() && n.optimizer != nil {
		n.optimizer.Update(n.state)
		n.state.ClearGrad()
	}
	n.state.updated = true
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	parts := make([]string, 0, len(n.inputs))
	for _, input := range n.inputs {
		parts = append(parts, fmt.Sprintf("%s%s", input.Type(), input.Shape()))
	}
	return fmt.Sprintf("%s%s(%s)", n.Type(), n.Shape(), strings.Join(parts, ", "))
}

// compositeOp is the operator of nodes created with Composite: it does nothing by itself,
// the work is done by the tail, whose State is shared.
type compositeOp struct {
	nodeType NodeType
}

func (op *compositeOp) Type() NodeType { return op.nodeType }
func (op *compositeOp) Forward(*Node)  {}
func (op *compositeOp) Backward(*Node) {}

func (n *Node) isComposite() bool {
	_, ok := n.op.(*compositeOp)
	return ok
}

// Composite creates a node that adopts the State of tail, with tail as its sole input.
//
// Layers are built from several primitive nodes, and Composite lets them expose a single
// addressable node: to the rest of the graph it behaves as the tail itself, and its output
// and gradient are physically the tail's.
//
// nodeType is reported by Node.Type, it can be NodeTypeComposite or a more specific type.
func Composite(nodeType NodeType, tail *Node) *Node {
	if tail == nil {
		exceptions.Panicf("Composite(%s): tail is nil", nodeType)
	}
	return &Node{
		state:  tail.state,
		inputs: []*Node{tail},
		op:     &compositeOp{nodeType: nodeType},
	}
}
