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
	"fmt"
	"math"
	"time"

	"github.com/gomlx/exceptions"
)

// schedule decides, after each training step, whether a scheduled hook is due.
type schedule interface {
	// start is called when a run (RunSteps or RunEpochs) starts.
	start(loop *Loop)

	// due is called after each step, and returns whether the hook should be called.
	due(loop *Loop) bool
}

// scheduledHook calls fn whenever its schedule is due.
type scheduledHook struct {
	schedule schedule
	fn       OnStepFn
}

// attachScheduled registers the OnStart and OnStep hooks (and optionally an OnEnd hook) for a scheduled fn.
func attachScheduled(loop *Loop, name string, priority Priority, s schedule, callOnEnd bool, fn OnStepFn) {
	h := &scheduledHook{schedule: s, fn: fn}
	loop.OnStart(name, priority, func(loop *Loop, _ Dataset) error {
		h.schedule.start(loop)
		return nil
	})
	loop.OnStep(name, priority, func(loop *Loop, metrics []float64) error {
		if !h.schedule.due(loop) {
			return nil
		}
		return h.fn(loop, metrics)
	})
	if callOnEnd {
		loop.OnEnd(name, priority, func(loop *Loop, metrics []float64) error {
			return h.fn(loop, metrics)
		})
	}
}

// nTimesSchedule is due n times evenly spaced over the run, the last time at the last step.
type nTimesSchedule struct {
	n, calls int
}

func (s *nTimesSchedule) start(*Loop) { s.calls = 0 }

func (s *nTimesSchedule) due(loop *Loop) bool {
	stepsDone := loop.LoopStep - loop.StartStep + 1
	if loop.EndStep < 0 {
		// Number of steps unknown: call at exponentially spaced steps, starting at 128.
		if stepsDone < 128<<s.calls {
			return false
		}
	} else if loop.LoopStep < loop.EndStep-1 {
		// The k-th call (1-based) happens at step ceil(k * totalSteps / n).
		totalSteps := loop.EndStep - loop.StartStep
		if stepsDone*s.n < (s.calls+1)*totalSteps {
			return false
		}
	}
	s.calls++
	return true
}

// NTimesDuringLoop registers a OnStep hook on the loop that is called n times, split evenly
// across all steps. It is always called at the very last step.
//
// If the number of steps is smaller than n, it is called at every step. If it is not known
// (Loop.RunEpochs during the first epoch) it is called at steps 128, 256, 512, ...
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(n=%d): n must be > 0", n)
	}
	attachScheduled(loop, fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name), priority,
		&nTimesSchedule{n: n}, false, fn)
}

// everyNSchedule is due once every n steps, counted since it was attached.
type everyNSchedule struct {
	n, count int
}

func (s *everyNSchedule) start(*Loop) {}

func (s *everyNSchedule) due(*Loop) bool {
	s.count++
	return s.count%s.n == 0
}

// EveryNSteps registers a OnStep hook on the loop that is called every n steps.
// Steps are counted across runs of the loop.
//
// Notice that it does not call `fn` at the last step (except by coincidence).
func EveryNSteps(loop *Loop, n int, name string, priority Priority, fn OnStepFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNSteps(n=%d): n must be > 0", n)
	}
	attachScheduled(loop, fmt.Sprintf("EveryNSteps(%d): %s", n, name), priority,
		&everyNSchedule{n: n}, false, fn)
}

// periodicSchedule is due when period has elapsed since it was last due. The clock
// starts at the first step of a run.
type periodicSchedule struct {
	period time.Duration
	last   time.Time
	now    func() time.Time
}

func (s *periodicSchedule) start(*Loop) { s.last = time.Time{} }

func (s *periodicSchedule) due(*Loop) bool {
	now := s.now()
	if s.last.IsZero() {
		s.last = now
		return false
	}
	if now.Sub(s.last) < s.period {
		return false
	}
	s.last = now
	return true
}

// PeriodicCallback registers an `OnStep` hook on the loop that is called every period of time.
// The clock starts at the first step of each run, and it is restarted after each call.
//
// If callOnEnd is set, it will also call at the end of the loop.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnStepFn) {
	attachScheduled(loop, fmt.Sprintf("PeriodicCallback(%s): %s", period, name), priority,
		&periodicSchedule{period: period, now: time.Now}, callOnEnd, fn)
}

// exponentialSchedule is due at steps startStep, startStep + startStep*factor,
// startStep + startStep*factor + startStep*factor², ... counted from the start of the run.
type exponentialSchedule struct {
	startStep int
	factor    float64
	next      int
	skip      float64
}

func (s *exponentialSchedule) start(loop *Loop) {
	s.skip = float64(s.startStep)
	s.next = loop.StartStep + s.startStep
}

func (s *exponentialSchedule) due(loop *Loop) bool {
	if loop.LoopStep+1 < s.next {
		return false
	}
	s.skip *= s.factor
	s.next += int(math.Round(s.skip))
	return true
}

// ExponentialCallback registers an `OnStep` hook on the loop that is called at exponentially increasing number
// of steps in between, starting with startStep, and growing at geometric factor of exponentialFactor.
//
// If callOnEnd is set, it will also call at the end of the loop.
//
// Example: This will call after steps 100, 100+100*1.2 = 220, 220+100*1.2^2 = 364, ...
//
//	ExponentialCallback(loop, 100, 1.2, false, "my_callback", 100, myCallback)
func ExponentialCallback(loop *Loop, startStep int, exponentialFactor float64, callOnEnd bool,
	name string, priority Priority, fn OnStepFn) {
	if startStep <= 0 || exponentialFactor <= 1 {
		exceptions.Panicf("ExponentialCallback(startStep=%d, exponentialFactor=%f): startStep must be > 0 and exponentialFactor must be > 1",
			startStep, exponentialFactor)
	}
	attachScheduled(loop, fmt.Sprintf("ExponentialCallback(%d, %g): %s", startStep, exponentialFactor, name), priority,
		&exponentialSchedule{startStep: startStep, factor: exponentialFactor}, callOnEnd, fn)
}
