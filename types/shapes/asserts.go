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

package shapes

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// UncheckedAxis can be used in CheckDims or AssertDims functions for an axis
// whose dimension doesn't matter.
const UncheckedAxis = int(-1)

// HasShape is an interface for objects that have an associated Shape.
// `graph.Node`, `graph.State` and Shape itself implement the interface.
type HasShape interface {
	Shape() Shape
}

// CheckDims checks that the shape has the given rows and columns. A value of -1
// means it can take any value and is not checked.
func (s Shape) CheckDims(rows, cols int) error {
	if rows != UncheckedAxis && s.Rows != rows {
		return errors.Errorf("shape %s has %d rows, wanted %d", s, s.Rows, rows)
	}
	if cols != UncheckedAxis && s.Cols != cols {
		return errors.Errorf("shape %s has %d columns, wanted %d", s, s.Cols, cols)
	}
	return nil
}

// AssertDims checks that the shape has the given rows and columns. A value of -1
// means it can take any value and is not checked.
//
// It panics if it doesn't match.
//
// See usage example in package shapes documentation.
func (s Shape) AssertDims(rows, cols int) {
	err := s.CheckDims(rows, cols)
	if err != nil {
		exceptions.Panicf("shapes.AssertDims(%d, %d): %v", rows, cols, err)
	}
}

// CheckDims checks that the shaped object has the given rows and columns.
// A value of -1 means it can take any value and is not checked.
func CheckDims(shaped HasShape, rows, cols int) error {
	return shaped.Shape().CheckDims(rows, cols)
}

// AssertDims checks that the shaped object has the given rows and columns.
// A value of -1 means it can take any value and is not checked.
//
// It panics if it doesn't match.
func AssertDims(shaped HasShape, rows, cols int) {
	shaped.Shape().AssertDims(rows, cols)
}
