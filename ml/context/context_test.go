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

package context

import (
	"fmt"
	"testing"

	"github.com/redtea-ml/redtea/ml/context/initializers"
	"github.com/redtea-ml/redtea/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestContextScope(t *testing.T) {
	ctx := New()
	assert.Equal(t, RootScope, ctx.Scope())
	ctx2 := ctx.In("a").In("b")
	assert.Equal(t, "/a/b", ctx2.Scope())
	assert.Equal(t, "/a/layer_3", ctx.In("a").Inf("layer_%d", 3).Scope())
	assert.Equal(t, RootScope, ctx.Scope(), "In must not change the original reference")
	require.Panics(t, func() { ctx.In("") })
	require.Panics(t, func() { ctx.In("a/b") })
	require.Panics(t, func() { ctx.InAbsPath("a") })
}

func TestParams(t *testing.T) {
	ctx := New()
	ctx.SetParam("x", 10)
	ctx.SetParam("y", 20)
	ctx.SetParam("z", 40.0)
	ctxA := ctx.In("a")
	ctxA.SetParam("y", 30)
	ctxAB := ctxA.In("b")
	ctxAB.SetParam("x", 100)

	got, found := ctxAB.GetParam("x")
	require.True(t, found)
	assert.Equal(t, 100, got)
	assert.Equal(t, 30, GetParamOr(ctxAB, "y", 0))
	assert.Equal(t, 40.0, GetParamOr(ctxAB, "z", 0.0))
	assert.Equal(t, 20, GetParamOr(ctx, "y", 0))
	assert.Equal(t, "default", GetParamOr(ctxAB, "w", "default"))

	// Conversion between compatible types.
	assert.Equal(t, 100.0, GetParamOr(ctxAB, "x", 0.0))
	assert.Equal(t, 40, MustGetParam[int](ctxAB, "z"))
	require.Panics(t, func() { MustGetParam[string](ctxAB, "w") })
	require.Panics(t, func() { MustGetParam[[]int](ctxAB, "x") })

	ctx.SetParam("nil_value", nil)
	assert.Equal(t, 7, GetParamOr(ctx, "nil_value", 7))

	var parts []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		parts = append(parts, fmt.Sprintf("%s:%s=%v", scope, key, value))
	})
	assert.Equal(t, []string{"/:nil_value=<nil>", "/:x=10", "/:y=20", "/:z=40", "/a:y=30", "/a/b:x=100"}, parts)
}

func TestVariables(t *testing.T) {
	ctx := New()
	ctx.SetParam(ParamInitialSeed, 42)
	ctx.RngStateReset()
	w := ctx.In("dense").VariableWithShape("weights", shapes.Make(3, 2))
	assert.Equal(t, "/dense", w.Scope())
	assert.Equal(t, "/dense/weights", w.ScopeAndName())
	assert.Equal(t, "/dense/weights[3 2]", w.String())
	assert.True(t, w.Node().Trainable())
	assert.Same(t, w, ctx.InspectVariable("/dense", "weights"))
	assert.Nil(t, ctx.InspectVariable("/dense", "biases"))

	// Reuse rules.
	require.Panics(t, func() { ctx.In("dense").VariableWithShape("weights", shapes.Make(3, 2)) })
	assert.Same(t, w, ctx.In("dense").Reuse().VariableWithShape("weights", shapes.Make(3, 2)))
	require.Panics(t, func() { ctx.In("dense").Reuse().VariableWithShape("weights", shapes.Make(2, 2)) })
	require.Panics(t, func() { ctx.In("other").Reuse().VariableWithShape("weights", shapes.Make(3, 2)) })
	assert.Same(t, w, ctx.In("dense").Checked(false).VariableWithShape("weights", shapes.Make(3, 2)))

	b := ctx.In("dense").WithInitializer(initializers.One).VariableWithShape("biases", shapes.Make(1, 2))
	assert.Equal(t, 2.0, mat.Sum(b.Value()))
	v := ctx.VariableWithValue("scale", mat.NewDense(1, 1, []float64{3}))
	assert.Equal(t, 3.0, v.Value().At(0, 0))
	v.SetValue(mat.NewDense(1, 1, []float64{4}))
	assert.Equal(t, 4.0, v.Node().Output().At(0, 0))

	assert.Equal(t, 3, ctx.NumVariables())
	assert.Equal(t, 6+2+1, ctx.NumParameters())
	assert.Equal(t, uintptr(8*9), ctx.Memory())

	var names []string
	ctx.In("dense").EnumerateVariablesInScope(func(v *Variable) { names = append(names, v.Name()) })
	assert.Equal(t, []string{"weights", "biases"}, names)
}

func TestDeterministicInitialization(t *testing.T) {
	build := func() *mat.Dense {
		ctx := New()
		ctx.SetParam(ParamInitialSeed, int64(7))
		return ctx.VariableWithShape("w", shapes.Make(4, 4)).Value()
	}
	assert.True(t, mat.Equal(build(), build()))
}
