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

// Package graph is the core package of redtea: a small reverse-mode automatic differentiation
// engine over dense real-valued matrices (gonum's mat.Dense).
//
// The main elements in the package are:
//
//   - State: the identity-bearing unit of graph state. It holds the shape, the cached output
//     matrix, the accumulated gradient and two per-pass flags. A State may be shared by several
//     Nodes that represent "the same quantity" (see Composite).
//
//   - Node: a vertex of the computation graph. It holds a handle to one State, its ordered inputs
//     (other Nodes, shared -- the graph is a DAG) and an Operator that supplies its forward and
//     backward formulas. Nodes are created by the ops: Variable, Constant, Add, Mul, MulElt, Split,
//     Concat and the ones in the activations, losses and layers packages.
//
//   - Optimizer: the update rule bound to the Nodes of a graph. Its implementations live in
//     package optimizers, which also drives the training step: Reset, Forward, Seed, Backward
//     and Update.
//
// ## Error Handling
//
// Shape mismatches are detected in "graph building time", when the ops are called, and they
// panic (with a stack trace) using github.com/gomlx/exceptions: an ill-typed graph has no
// recovery path. Use Build to convert such a panic into an error.
//
// Numeric degeneracies (e.g.: log of 0) are not trapped, they propagate as non-finite values.
//
// ## Delayed Execution
//
// Building the graph doesn't compute anything: values are only computed when Node.Forward is
// called, and they are cached (memoized) in the State until Node.Reset is called. This is what
// allows a value shared by many consumers to be computed only once per step.
//
// ## Concurrency
//
// Nothing in this package is safe for concurrent use: States are mutated in place, and they are
// shared by design.
package graph

import (
	"github.com/gomlx/exceptions"
)

// Build runs the graph building function buildFn, and converts any panic raised with an error
// (as the ops do when shapes don't match) into a returned error.
//
// Panics with other types are not caught.
func Build(buildFn func()) error {
	return exceptions.TryCatch[error](buildFn)
}
