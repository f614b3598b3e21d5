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

package train_test

import (
	"testing"

	"github.com/redtea-ml/redtea/ml/data"
	. "github.com/redtea-ml/redtea/ml/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSteps returns a hook that appends the loop step of each call to steps.
func recordSteps(steps *[]int) OnStepFn {
	return func(loop *Loop, _ []float64) error {
		*steps = append(*steps, loop.LoopStep)
		return nil
	}
}

func newLinearLoop() (*Loop, Dataset) {
	trainer, _ := newLinearTrainer()
	inputs, labels := linearData()
	ds := data.InMemory("linear", inputs, labels).BatchSize(4, true).Infinite(true)
	return NewLoop(trainer), ds
}

func TestNTimesDuringLoop(t *testing.T) {
	loop, ds := newLinearLoop()
	var steps []int
	NTimesDuringLoop(loop, 10, "record", 0, recordSteps(&steps))
	_, err := loop.RunSteps(ds, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 19, 29, 39, 49, 59, 69, 79, 89, 99}, steps)

	// Fewer steps than n: called at every step of the new run.
	steps = nil
	_, err = loop.RunSteps(ds, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 101, 102}, steps)

	// Uneven split: the last step is always included.
	steps = nil
	_, err = loop.RunSteps(ds, 7)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.LessOrEqual(t, len(steps), 7)
	assert.Equal(t, 109, steps[len(steps)-1])

	require.Panics(t, func() { NTimesDuringLoop(loop, 0, "bad", 0, recordSteps(&steps)) })
}

func TestExponentialCallback(t *testing.T) {
	loop, ds := newLinearLoop()
	var steps, ends []int
	ExponentialCallback(loop, 2, 2, false, "record", 0, recordSteps(&steps))
	ExponentialCallback(loop, 2, 2, true, "record_with_end", 0, recordSteps(&ends))
	_, err := loop.RunSteps(ds, 20)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 13}, steps)
	assert.Equal(t, []int{1, 5, 13, 20}, ends)

	require.Panics(t, func() { ExponentialCallback(loop, 10, 1, false, "bad", 0, recordSteps(&steps)) })
}

func TestPeriodicCallback(t *testing.T) {
	loop, ds := newLinearLoop()
	var steps []int
	// With a zero period it is due at every step but the first, where the clock starts.
	PeriodicCallback(loop, 0, true, "record", 0, recordSteps(&steps))
	_, err := loop.RunSteps(ds, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, steps)
}
