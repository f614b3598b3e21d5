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

package train

import (
	"io"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Priority of a hook: hooks with lower values run first. Hooks with the same priority run
// in the order they were registered.
type Priority int

// OnStartFn is called at the start of each run, with the dataset being trained on.
type OnStartFn func(loop *Loop, ds Dataset) error

// OnStepFn is called after each training step, with the metrics returned by Trainer.TrainStep.
type OnStepFn func(loop *Loop, metrics []float64) error

// OnEndFn is called at the end of each run, with the metrics of the last step.
type OnEndFn func(loop *Loop, metrics []float64) error

// OnAbortFn is called instead of the OnEnd hooks when a run fails, with the error the run returns.
// It is also called if an OnStart or OnEnd hook fails, so it must handle partially started or
// finished runs.
type OnAbortFn func(loop *Loop, err error)

// Loop drives a Trainer over a Dataset, one Trainer.TrainStep per batch, and calls the
// registered hooks at the start of a run, after every step and at the end of a run.
//
// Progress bars, plots and NaN tracing are all attached as hooks.
//
// The exported fields are updated by the loop and should be treated as read-only.
type Loop struct {
	// Trainer driven by the loop.
	Trainer *Trainer

	// LoopStep is the step being executed. It starts at 0 and keeps counting across runs.
	LoopStep int

	// StartStep is the value of LoopStep when the current (or last) run started.
	StartStep int

	// EndStep is one past the last step of the current run, or -1 if not known yet.
	// Loop.RunEpochs only knows it after the first epoch, and updates it after every epoch.
	EndStep int

	// Epoch being executed by Loop.RunEpochs, starting at 0.
	Epoch int

	// TrainStepDurations holds the duration of each step of the current (or last) run.
	TrainStepDurations []time.Duration

	onStart hooks[OnStartFn]
	onStep  hooks[OnStepFn]
	onEnd   hooks[OnEndFn]
	onAbort hooks[OnAbortFn]
}

// NewLoop creates a training loop for trainer, with no hooks.
func NewLoop(trainer *Trainer) *Loop {
	return &Loop{Trainer: trainer, EndStep: -1}
}

// OnStart registers fn to be called at the start of every run. The name is used in error messages.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.add(name, priority, fn)
}

// OnStep registers fn to be called after every Trainer.TrainStep. The name is used in error messages.
//
// OnStep hooks run before the batch loss is checked, so they see the step that turned the loss
// into NaN or infinity.
func (loop *Loop) OnStep(name string, priority Priority, fn OnStepFn) {
	loop.onStep.add(name, priority, fn)
}

// OnEnd registers fn to be called after the last step of every run. The name is used in error messages.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.add(name, priority, fn)
}

// OnAbort registers fn to be called when a run returns an error, so hooks holding resources
// (goroutines, files) can release them.
func (loop *Loop) OnAbort(name string, priority Priority, fn OnAbortFn) {
	loop.onAbort.add(name, priority, fn)
}

// RunSteps trains for the given number of steps, starting at the current LoopStep, so consecutive
// calls resume where the previous one stopped. The dataset must yield at least steps batches.
//
// It returns the metrics of the last step.
func (loop *Loop) RunSteps(ds Dataset, steps int) (metrics []float64, err error) {
	if steps == 0 {
		return nil, nil
	}
	defer loop.abortOnError(&err)
	if err = loop.begin(ds, loop.LoopStep+steps); err != nil {
		return nil, err
	}
	for loop.LoopStep = loop.StartStep; loop.LoopStep < loop.EndStep; loop.LoopStep++ {
		spec, inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			return nil, errors.Errorf(
				"reached Dataset end after %d steps (requested %d steps) -- use an infinite Dataset "+
					"or Loop.RunEpochs instead", loop.LoopStep-loop.StartStep, steps)
		}
		if yieldErr != nil {
			return nil, errors.WithMessagef(yieldErr, "Loop.RunSteps(%d): failed reading from Dataset %q", steps, ds.Name())
		}
		metrics, err = loop.trainStep(spec, inputs, labels)
		if err != nil {
			return nil, errors.WithMessagef(err, "Loop.RunSteps(%d): failed at LoopStep=%d", steps, loop.LoopStep)
		}
	}
	if err = loop.finish(metrics); err != nil {
		return nil, errors.WithMessagef(err, "Loop.RunSteps(%d)", steps)
	}
	return metrics, nil
}

// RunEpochs trains over the full dataset the given number of times, calling Dataset.Reset after
// each epoch. Epoch is updated as it goes, and EndStep is extrapolated from the number of batches
// of the first epoch.
//
// It returns the metrics of the last step.
func (loop *Loop) RunEpochs(ds Dataset, epochs int) (metrics []float64, err error) {
	defer loop.abortOnError(&err)
	if err = loop.begin(ds, -1); err != nil {
		return nil, err
	}
	for loop.Epoch = 0; loop.Epoch < epochs; loop.Epoch++ {
		batches := 0
		for {
			spec, inputs, labels, yieldErr := ds.Yield()
			if yieldErr == io.EOF {
				break
			}
			if yieldErr != nil {
				return nil, errors.WithMessagef(yieldErr, "Loop.RunEpochs(%d): failed reading from Dataset %q (LoopStep=%d)",
					epochs, ds.Name(), loop.LoopStep)
			}
			batches++
			metrics, err = loop.trainStep(spec, inputs, labels)
			if err != nil {
				return nil, errors.WithMessagef(err, "Loop.RunEpochs(%d): failed at LoopStep=%d", epochs, loop.LoopStep)
			}
			loop.LoopStep++
		}
		if batches == 0 {
			return nil, errors.Errorf("Loop.RunEpochs(%d): dataset %q yielded no batches in epoch %d", epochs, ds.Name(), loop.Epoch)
		}
		loop.EndStep = loop.LoopStep + batches*(epochs-loop.Epoch-1)
		ds.Reset()
	}
	if err = loop.finish(metrics); err != nil {
		return nil, errors.WithMessagef(err, "Loop.RunEpochs(%d)", epochs)
	}
	return metrics, nil
}

// MedianTrainStepDuration of the current (or last) run. It returns 1 millisecond if no step was
// run, so it can be used as a divisor.
func (loop *Loop) MedianTrainStepDuration() time.Duration {
	if len(loop.TrainStepDurations) == 0 {
		return time.Millisecond
	}
	durations := slices.Clone(loop.TrainStepDurations)
	slices.Sort(durations)
	return durations[len(durations)/2]
}

// begin a run ending at endStep (-1 if unknown) and call the OnStart hooks.
func (loop *Loop) begin(ds Dataset, endStep int) error {
	loop.Trainer.ResetTrainMetrics()
	loop.StartStep, loop.EndStep, loop.Epoch = loop.LoopStep, endStep, 0
	loop.TrainStepDurations = nil
	klog.V(1).Infof("training loop on %q starting at step %d", ds.Name(), loop.LoopStep)
	return runHooks("OnStart", loop.onStart, func(fn OnStartFn) error { return fn(loop, ds) })
}

// trainStep runs one Trainer.TrainStep, the OnStep hooks, and then checks the batch loss.
func (loop *Loop) trainStep(spec any, inputs, labels []*mat.Dense) ([]float64, error) {
	startTime := time.Now()
	metrics, err := loop.Trainer.TrainStep(spec, inputs, labels)
	loop.TrainStepDurations = append(loop.TrainStepDurations, time.Since(startTime))
	if err != nil {
		return nil, err
	}
	err = runHooks("OnStep", loop.onStep, func(fn OnStepFn) error { return fn(loop, metrics) })
	if err != nil {
		return nil, err
	}
	if err = checkBatchLoss(loop.LoopStep, metrics[0]); err != nil {
		return nil, err
	}
	return metrics, nil
}

// finish a run: call the OnEnd hooks.
func (loop *Loop) finish(metrics []float64) error {
	err := runHooks("OnEnd", loop.onEnd, func(fn OnEndFn) error { return fn(loop, metrics) })
	klog.V(1).Infof("training loop finished at step %d, median step duration %s", loop.LoopStep, loop.MedianTrainStepDuration())
	return err
}

// abortOnError calls the OnAbort hooks if the run failed.
func (loop *Loop) abortOnError(err *error) {
	if *err == nil {
		return
	}
	klog.V(1).Infof("training loop aborted at step %d: %v", loop.LoopStep, *err)
	_ = runHooks("OnAbort", loop.onAbort, func(fn OnAbortFn) error {
		fn(loop, *err)
		return nil
	})
}

// checkBatchLoss interrupts training when the loss is no longer a finite number.
func checkBatchLoss(step int, loss float64) error {
	switch {
	case math.IsNaN(loss):
		klog.Warningf("batch loss is NaN at step %d, interrupting training", step)
		return errors.New("batch loss is NaN, training interrupted")
	case math.IsInf(loss, 0):
		klog.Warningf("batch loss is infinity at step %d, interrupting training", step)
		return errors.Errorf("batch loss is infinity (%f), training interrupted", loss)
	}
	return nil
}

// hook is a registered hook function.
type hook[F any] struct {
	name     string
	priority Priority
	fn       F
}

// hooks are kept sorted by priority, in registration order within the same priority.
type hooks[F any] []hook[F]

func (hs *hooks[F]) add(name string, priority Priority, fn F) {
	idx := sort.Search(len(*hs), func(ii int) bool { return (*hs)[ii].priority > priority })
	*hs = slices.Insert(*hs, idx, hook[F]{name: name, priority: priority, fn: fn})
}

// runHooks calls each hook in order, and stops at the first error.
func runHooks[F any](kind string, hs hooks[F], call func(fn F) error) error {
	for _, h := range hs {
		if err := call(h.fn); err != nil {
			return errors.WithMessagef(err, "%s(hook %q)", kind, h.name)
		}
	}
	return nil
}
