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

// State is the mutable state of a quantity in the graph: its shape, the cached output of the
// forward pass, the gradient accumulated during the backward pass, and the flags that prevent
// repeated work when it is reachable through multiple paths.
//
// A State is always handled by pointer, and its pointer is its identity: Nodes that alias
// the same quantity hold the same *State, and the backward scheduler deduplicates by it.
type State struct {
	shape     shapes.Shape
	output    *mat.Dense
	grad      *mat.Dense
	forwarded bool
	updated   bool
}

func newState(shape shapes.Shape) *State {
	if !shape.Ok() {
		exceptions.Panicf("invalid shape %s for graph state", shape)
	}
	return &State{
		shape: shape,
		grad:  mat.NewDense(shape.Rows, shape.Cols, nil),
	}
}

// Shape of the state's matrices.
func (s *State) Shape() shapes.Shape { return s.shape }

// Output returns the cached output. It is nil for an operator that hasn't been forwarded yet.
//
// The returned matrix is owned by the State and is overwritten in the next forward pass.
func (s *State) Output() *mat.Dense { return s.output }

// SetOutput copies m into the cached output. It panics if m doesn't have the state's shape.
func (s *State) SetOutput(m mat.Matrix) {
	s.assertShape("SetOutput", m)
	s.outputBuffer().Copy(m)
}

// Grad returns the gradient accumulated so far.
func (s *State) Grad() *mat.Dense { return s.grad }

// AddGrad accumulates delta into the gradient. It panics if delta doesn't have the state's shape.
func (s *State) AddGrad(delta mat.Matrix) {
	s.assertShape("AddGrad", delta)
	s.grad.Add(s.grad, delta)
}

// ClearGrad zeroes the accumulated gradient.
func (s *State) ClearGrad() {
	s.grad.Zero()
}

// Forwarded returns whether the output is cached for the current pass.
func (s *State) Forwarded() bool { return s.forwarded }

// Updated returns whether the state was already visited by the update pass.
func (s *State) Updated() bool { return s.updated }

func (s *State) assertShape(method string, m mat.Matrix) {
	rows, cols := m.Dims()
	if rows != s.shape.Rows || cols != s.shape.Cols {
		exceptions.Panicf("State.%s: matrix shape [%d %d] doesn't match state shape %s", method, rows, cols, s.shape)
	}
}

// outputBuffer returns the cached output matrix, allocating it (zeroed) if not there yet.
// Operators write their forward results into it.
func (s *State) outputBuffer() *mat.Dense {
	if s.output == nil {
		s.output = mat.NewDense(s.shape.Rows, s.shape.Cols, nil)
	}
	return s.output
}
