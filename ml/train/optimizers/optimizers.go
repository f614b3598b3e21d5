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

// Package optimizers implements the update rules that train the Variables of a graph, and
// the Optimizer that binds them to a loss and runs one training step at a time.
//
// Example:
//
//	opt := optimizers.Adam().LearningRate(0.01).Done().Minimize(loss)
//	for step := 0; step < numSteps; step++ {
//		if err := opt.Run(); err != nil {
//			return err
//		}
//	}
package optimizers

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Rule is the per-parameter update formula of an optimizer.
//
// Step writes into step the amount to subtract from param, given its current gradient grad.
// slots holds the accumulators of this one parameter, and are preserved across calls.
type Rule interface {
	fmt.Stringer
	Step(param, grad, step *mat.Dense, slots *Slots)
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors.
	// The constructors read their hyperparameters from the context.
	KnownOptimizers = map[string]func(ctx *context.Context) *Optimizer{
		"sgd":      func(ctx *context.Context) *Optimizer { return StochasticGradientDescent().FromContext(ctx).Done() },
		"momentum": func(ctx *context.Context) *Optimizer { return Momentum().FromContext(ctx).Done() },
		"adadelta": func(ctx *context.Context) *Optimizer { return Adadelta().FromContext(ctx).Done() },
		"adam":     func(ctx *context.Context) *Optimizer { return Adam().FromContext(ctx).Done() },
	}

	// ParamOptimizer is the context parameter with the name of the optimizer.
	// The default value is "adam", and the valid values are the keys of KnownOptimizers.
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the context parameter name for the learning rate.
	// It is used by SGD, Momentum and Adam.
	ParamLearningRate = "learning_rate"

	// ParamClipStepByValue is a clip scalar value for each individual value of the step, after
	// being scaled by the learning rate and optimizer.
	// The step applied will be clipped to `[-clip_step_by_value, +clip_step_by_value]`.
	// Defaults to no clipping, and values are expected to be float64.
	ParamClipStepByValue = "clip_step_by_value"

	// ErrNoLoss is returned by Optimizer.Run when no loss was bound with Minimize.
	ErrNoLoss = errors.New("optimizer has no loss to minimize, call Minimize first")
)

// FromContext creates an optimizer from context hyperparameters.
// See [ParamOptimizer]. The default is "adam".
func FromContext(ctx *context.Context) *Optimizer {
	optName := context.GetParamOr(ctx, ParamOptimizer, "adam")
	opt := ByName(ctx, optName)
	return opt.ClipStepByValue(context.GetParamOr(ctx, ParamClipStepByValue, 0.0))
}

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers.
//
// The optimizers use optional hyperparameters set in the context for configuration.
func ByName(ctx *context.Context, optName string) *Optimizer {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		exceptions.Panicf("unknown optimizer %q, valid values are %q", optName, KnownNames())
	}
	return optBuilder(ctx)
}

// KnownNames returns the sorted names of KnownOptimizers.
func KnownNames() []string {
	return slices.Sorted(maps.Keys(KnownOptimizers))
}

// Optimizer applies a Rule to every trainable Variable reachable from the loss it minimizes.
//
// It implements graph.Optimizer, and it's bound to the graph with Minimize.
type Optimizer struct {
	rule            Rule
	loss            *graph.Node
	slots           map[*graph.State]*Slots
	step            *mat.Dense
	globalStep      int
	clipStepByValue float64
}

// New creates an Optimizer for the given rule. Usually one uses the builders
// (e.g. Adam().Done()) instead.
func New(rule Rule) *Optimizer {
	if rule == nil {
		exceptions.Panicf("optimizers.New(nil): a rule is required")
	}
	return &Optimizer{
		rule:  rule,
		slots: make(map[*graph.State]*Slots),
	}
}

// Rule returns the update rule used by the optimizer.
func (o *Optimizer) Rule() Rule { return o.rule }

// String implements fmt.Stringer.
func (o *Optimizer) String() string { return o.rule.String() }

// Loss returns the loss bound by Minimize, or nil.
func (o *Optimizer) Loss() *graph.Node { return o.loss }

// GlobalStep returns the number of training steps run so far.
func (o *Optimizer) GlobalStep() int { return o.globalStep }

// ClipStepByValue sets the maximum absolute value of each element of a step. 0 disables clipping.
func (o *Optimizer) ClipStepByValue(value float64) *Optimizer {
	if value < 0 {
		exceptions.Panicf("ClipStepByValue(%g): value must be >= 0", value)
	}
	o.clipStepByValue = value
	return o
}

// Minimize binds the optimizer to loss and to every node reachable from it that doesn't have
// an optimizer yet. It returns itself, so calls can be chained.
func (o *Optimizer) Minimize(loss *graph.Node) *Optimizer {
	if loss == nil {
		exceptions.Panicf("Optimizer.Minimize(nil): a loss node is required")
	}
	o.loss = loss
	loss.SetOptimizer(o)
	return o
}

// Run executes one training step: it resets the graph, computes the loss, seeds it with ones,
// back-propagates the gradients and updates every trainable Variable once.
//
// If no loss was bound, the step is skipped and ErrNoLoss is returned.
func (o *Optimizer) Run() error {
	if o.loss == nil {
		klog.Errorf("optimizer %s: Run() called without a loss, skipping step", o)
		return ErrNoLoss
	}
	o.loss.Reset()
	o.loss.Forward()
	graph.Seed(o.loss)
	graph.Backward(o.loss)
	o.loss.Update()
	o.globalStep++
	return nil
}

// Update implements graph.Optimizer. It applies the rule to param, using its current gradient.
func (o *Optimizer) Update(param *graph.State) {
	slots := o.Slots(param)
	shape := param.Shape()
	if o.step == nil || o.step.RawMatrix().Rows != shape.Rows || o.step.RawMatrix().Cols != shape.Cols {
		o.step = mat.NewDense(shape.Rows, shape.Cols, nil)
	} else {
		o.step.Zero()
	}
	o.rule.Step(param.Output(), param.Grad(), o.step, slots)
	slots.Count++
	if o.clipStepByValue > 0 {
		clip := o.clipStepByValue
		o.step.Apply(func(_, _ int, v float64) float64 {
			return math.Max(-clip, math.Min(clip, v))
		}, o.step)
	}
	param.Output().Sub(param.Output(), o.step)
}

// Slots returns the accumulators kept for param, creating them if needed.
func (o *Optimizer) Slots(param *graph.State) *Slots {
	slots, found := o.slots[param]
	if !found {
		slots = newSlots(param)
		o.slots[param] = slots
	}
	return slots
}

// Clear deletes all accumulators and the step counter, as if the optimizer were just created.
// The bound loss is kept.
func (o *Optimizer) Clear() {
	clear(o.slots)
	o.globalStep = 0
}

// Slots holds the accumulators of one parameter.
type Slots struct {
	param        *graph.State
	accumulators map[string]*mat.Dense

	// Count is the number of updates already applied to the parameter. It is incremented
	// after each call to Rule.Step.
	Count int
}

func newSlots(param *graph.State) *Slots {
	return &Slots{param: param, accumulators: make(map[string]*mat.Dense)}
}

// Get returns the accumulator with the given name, created with zeros and the shape
// of the parameter on first use.
func (s *Slots) Get(name string) *mat.Dense {
	acc, found := s.accumulators[name]
	if !found {
		shape := s.param.Shape()
		acc = mat.NewDense(shape.Rows, shape.Cols, nil)
		s.accumulators[name] = acc
	}
	return acc
}

// Names returns the sorted names of the accumulators created so far.
func (s *Slots) Names() []string {
	return slices.Sorted(maps.Keys(s.accumulators))
}

// checkPositive panics if value is not > 0.
func checkPositive(optimizer, name string, value float64) {
	if !(value > 0) {
		exceptions.Panicf("%s: %s must be > 0, got %g", optimizer, name, value)
	}
}

// checkDecay panics if value is not in [0, 1).
func checkDecay(optimizer, name string, value float64) {
	if !(value >= 0 && value < 1) {
		exceptions.Panicf("%s: %s must be in [0, 1), got %g", optimizer, name, value)
	}
}
