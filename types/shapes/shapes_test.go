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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Shape{}
	require.False(t, invalidShape.Ok())

	shape := Make(4, 3)
	require.True(t, shape.Ok())
	require.False(t, shape.IsScalar())
	require.False(t, shape.IsRow())
	require.Equal(t, 12, shape.Size())
	require.Equal(t, 8*12, int(shape.Memory()))
	require.Equal(t, "[4 3]", shape.String())
	require.True(t, shape.Transposed().Equal(Make(3, 4)))

	rows, cols := shape.Dims()
	require.Equal(t, 4, rows)
	require.Equal(t, 3, cols)

	require.True(t, Make(1, 1).IsScalar())
	require.True(t, Make(1, 7).IsRow())

	require.Panics(t, func() { _ = Make(0, 3) })
	require.Panics(t, func() { _ = Make(2, -1) })
}

func TestAssertDims(t *testing.T) {
	shape := Make(5, 2)
	require.NoError(t, shape.CheckDims(5, 2))
	require.NoError(t, shape.CheckDims(UncheckedAxis, 2))
	require.NoError(t, CheckDims(shape, 5, UncheckedAxis))
	require.Error(t, shape.CheckDims(4, 2))
	require.Error(t, shape.CheckDims(5, 3))
	require.NotPanics(t, func() { AssertDims(shape, -1, -1) })
	require.Panics(t, func() { AssertDims(shape, 1, 2) })
}
