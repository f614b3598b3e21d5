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
)

// This file implements the graph-wide scheduling of the backward pass.
//
// Overall in this file we assume the following conventions:
//
//   - root node: the final output of the graph, usually a loss. Its gradient is seeded (see Seed)
//     before Backward is called.
//   - layer: the set of nodes visited in one iteration of the breadth-first traversal. The first
//     layer is the root; each following layer holds the inputs of the nodes of the previous one.
//   - shared state: different Nodes may hold the same *State (see Composite), and the same Node
//     may be the input of several consumers (weights shared across the steps of a recurrent
//     layer). Within a layer, nodes are deduplicated by their *State, so all contributions to a
//     shared state are pushed by one visit.
//
// A node reachable through paths of different lengths shows up in more than one layer. Each
// visit pushes only the gradient accumulated since the previous visit (Node.Backward clears it),
// and the backward formulas are linear, so the leaves still end up with the full sum.

// Backward runs the backward pass of every node reachable from root, in breadth-first layers.
//
// The root's gradient must have been seeded (see Seed) and the graph forwarded. Leaves end up
// holding their accumulated gradient, to be consumed by Node.Update.
func Backward(root *Node) {
	if root == nil {
		exceptions.Panicf("Backward(): nil root")
	}
	layer := []*Node{root}
	for len(layer) > 0 {
		visited := make(map[*State]bool, len(layer))
		var next []*Node
		for _, node := range layer {
			node.Backward()
			for _, input := range node.inputs {
				if visited[input.state] {
					continue
				}
				visited[input.state] = true
				next = append(next, input)
			}
		}
		layer = next
	}
}

// Seed adds ones to the root's gradient: each element of a (non-reduced) loss matrix contributes
// with unit weight to the objective.
func Seed(root *Node) {
	if root == nil {
		exceptions.Panicf("Seed(): nil root")
	}
	root.AddGrad(onesLike(root.Shape()))
}
