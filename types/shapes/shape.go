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

// Package shapes defines Shape, the dimensions of the 2-D matrices flowing through a graph.
//
// Every value in the graph is a matrix, so a Shape is simply a number of rows and a number
// of columns. A shape with non-positive dimensions is invalid: Make panics on them, and the
// zero value Shape{} is reported as not Ok.
//
// ## Asserts
//
// Shapes are only known at graph-building time, so validation happens in runtime. To facilitate,
// and also to serve as code documentation, this package provides assert functionality:
//
// `AssertDims` checks that the rows and columns of the given object (that has a `Shape` method)
// match, otherwise it panics. The `-1` means the dimension is unchecked (it can be anything).
//
//	func model(x *graph.Node) *graph.Node {
//	   shapes.AssertDims(x, -1, 4)
//	   batchSize := x.Shape().Rows
//	   logits := layers.Dense(x, 1)
//	   shapes.AssertDims(logits, batchSize, 1)
//	   return logits
//	}
package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Shape of a matrix: number of rows and columns.
//
// Use Make to create a new shape.
type Shape struct {
	Rows, Cols int
}

// Make returns a Shape with the given dimensions.
// It panics if any of the dimensions is <= 0.
func Make(rows, cols int) Shape {
	s := Shape{Rows: rows, Cols: cols}
	if rows <= 0 || cols <= 0 {
		exceptions.Panicf("shapes.Make(%d, %d): cannot create a shape with a dimension <= 0", rows, cols)
	}
	return s
}

// Ok returns whether this is a valid Shape. The zero value Shape{} is invalid.
func (s Shape) Ok() bool { return s.Rows > 0 && s.Cols > 0 }

// Dims returns rows and columns, in the same order as gonum's mat.Matrix.Dims.
func (s Shape) Dims() (rows, cols int) { return s.Rows, s.Cols }

// Shape returns a copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	return fmt.Sprintf("[%d %d]", s.Rows, s.Cols)
}

// Size returns the number of elements of the matrix.
func (s Shape) Size() int {
	return s.Rows * s.Cols
}

// Memory returns the number of bytes used to store a float64 matrix of this shape.
func (s Shape) Memory() uintptr {
	return 8 * uintptr(s.Size())
}

// Equal compares two shapes for equality.
func (s Shape) Equal(s2 Shape) bool {
	return s.Rows == s2.Rows && s.Cols == s2.Cols
}

// Transposed returns the shape with rows and columns swapped.
func (s Shape) Transposed() Shape {
	return Shape{Rows: s.Cols, Cols: s.Rows}
}

// IsRow returns whether the shape is a single row.
func (s Shape) IsRow() bool { return s.Ok() && s.Rows == 1 }

// IsScalar returns whether the shape holds exactly one value.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rows == 1 && s.Cols == 1 }
