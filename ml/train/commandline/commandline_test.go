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

package commandline

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/data"
	"github.com/redtea-ml/redtea/ml/train"
	"github.com/redtea-ml/redtea/ml/train/losses"
	"github.com/redtea-ml/redtea/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func createTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParam("x", 11.0)
	ctx.SetParam("y", 7)
	ctx.SetParam("z", false)
	ctx.SetParam("s", "foo")
	ctx.SetParam("list_int", []int{})
	ctx.SetParam("list_float", []float64{})
	ctx.SetParam("list_str", []string{})
	return ctx
}

func TestParseContextSettings(t *testing.T) {
	ctx := createTestContext()

	paramsSet, err := ParseContextSettings(ctx,
		"x=13;/a/z=true;/a/b/y=3;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;y=1_000")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "/a/z", "/a/b/y", "s", "list_int", "list_float", "list_str", "y"}, paramsSet)
	x, found := ctx.GetParam("x")
	assert.True(t, found)
	assert.Equal(t, 13.0, x.(float64))

	y, found := ctx.GetParam("y")
	assert.True(t, found)
	assert.Equal(t, 1000, y)
	y, _ = ctx.In("a").GetParam("y")
	assert.Equal(t, 1000, y)
	y, _ = ctx.In("a").In("b").GetParam("y")
	assert.Equal(t, 3, y)

	z, found := ctx.GetParam("z")
	assert.True(t, found)
	assert.False(t, z.(bool))
	z, _ = ctx.In("a").GetParam("z")
	assert.True(t, z.(bool))

	s, found := ctx.GetParam("s")
	assert.True(t, found)
	assert.Equal(t, "bar", s.(string))

	assert.Equal(t, []int{1, 3, 7}, context.GetParamOr(ctx, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, context.GetParamOr(ctx, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, context.GetParamOr(ctx, "list_str", []string{}))

	// Parameter "q" is unknown.
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Parameter "q" is still unknown in root.
	ctx.In("c").SetParam("q", 13)
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseContextSettings(ctx, "y=3.14")
	require.Error(t, err)

	// Malformed settings and relative scopes.
	_, err = ParseContextSettings(ctx, "x")
	require.Error(t, err)
	_, err = ParseContextSettings(ctx, "a/x=1")
	require.Error(t, err)
}

func TestParseContextSettingsFromFile(t *testing.T) {
	ctx := createTestContext()
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Comment\nx=2.5;s=file\n\ny=5\n"), 0644))
	paramsSet, err := ParseContextSettings(ctx, "file:"+filePath+";z=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "s", "y", "z"}, paramsSet)
	assert.Equal(t, 2.5, context.GetParamOr(ctx, "x", 0.0))
	assert.Equal(t, "file", context.GetParamOr(ctx, "s", ""))
	assert.Equal(t, 5, context.GetParamOr(ctx, "y", 0))
	assert.True(t, context.GetParamOr(ctx, "z", false))

	_, err = ParseContextSettings(ctx, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSprintContextSettings(t *testing.T) {
	ctx := createTestContext()
	ctx.In("a").SetParam("x", 1.0)
	s := SprintContextSettings(ctx)
	assert.Contains(t, s, `"x": (float64) 11`)
	assert.Contains(t, s, `"/a" / "x": (float64) 1`)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23ms", FormatDuration(1234567*time.Nanosecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestReportEvalAndSummary(t *testing.T) {
	ctx := context.New()
	modelFn := func(ctx *context.Context, _ any, inputs []*graph.Node) []*graph.Node {
		w := ctx.VariableWithValue("w", mat.NewDense(1, 1, []float64{1})).Node()
		return []*graph.Node{graph.Mul(inputs[0], w)}
	}
	trainer := train.NewTrainer(ctx, modelFn, losses.LeastSquares, optimizers.StochasticGradientDescent().Done(), nil, nil)
	inputs := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	ds := data.InMemory("doubles", inputs, mat.NewDense(4, 1, []float64{2, 4, 6, 8})).BatchSize(2, true)

	loop := train.NewLoop(trainer)
	var progress bytes.Buffer
	AttachProgressBarTo(loop, &progress)
	_, err := loop.RunEpochs(ds, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, progress.String())

	var report bytes.Buffer
	require.NoError(t, ReportEval(&report, trainer, ds))
	assert.Contains(t, report.String(), "Results on doubles:")
	assert.Contains(t, report.String(), "Mean Loss (#loss)")

	summary := SprintTrainingSummary(ctx, loop)
	assert.Contains(t, summary, "Parameters")
	assert.Contains(t, summary, "SGD(lr=0.001)")
}

func TestProgressBarInterruptedRuns(t *testing.T) {
	ctx := context.New()
	modelFn := func(ctx *context.Context, _ any, inputs []*graph.Node) []*graph.Node {
		w := ctx.VariableWithValue("w", mat.NewDense(1, 1, []float64{1})).Node()
		return []*graph.Node{graph.Mul(inputs[0], w)}
	}
	trainer := train.NewTrainer(ctx, modelFn, losses.LeastSquares, optimizers.StochasticGradientDescent().Done(), nil, nil)
	inputs := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	labels := mat.NewDense(4, 1, []float64{2, math.NaN(), 6, 8})
	ds := data.InMemory("nan", inputs, labels).BatchSize(4, true).Infinite(true)

	loop := train.NewLoop(trainer)
	var progress bytes.Buffer
	AttachProgressBarTo(loop, &progress)
	before := runtime.NumGoroutine()
	for range 5 {
		_, err := loop.RunSteps(ds, 10)
		require.ErrorContains(t, err, "NaN")
	}
	// Each interrupted run must stop its renderer.
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		time.Second, 10*time.Millisecond)
}
