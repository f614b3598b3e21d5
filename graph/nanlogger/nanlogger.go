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

// Package nanlogger collects traces of selected graph nodes, and after a forward pass reports the
// first of them whose output holds a NaN or an infinity: that points to where in the model a
// numeric problem started.
//
// Example: trace the nodes of interest while building the model, and attach the logger to the
// training loop, which then stops at the first step producing a NaN or infinity in a traced node:
//
//	var nanLogger *nanlogger.NanLogger
//	if *flagNanLogger {
//		nanLogger = nanlogger.New()
//	}
//	...
//	func ModelFn(ctx *context.Context, spec any, inputs []*Node) []*Node {
//		nanLogger.PushScope("dense")
//		logits := layers.Dense(ctx, inputs[0], 1)
//		nanLogger.Trace(logits)
//		nanLogger.PopScope()
//		...
//	}
//	...
//	nanLogger.AttachToLoop(loop)
//
// A nil NanLogger is valid: all its methods are no-ops, so the tracing code can be left in the model.
package nanlogger

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/train"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// NanLogger traces nodes and reports the first one with a NaN or infinity in its output.
type NanLogger struct {
	handler      HandlerFn
	traces       []*Trace
	currentScope []string
}

// Trace information of a node being monitored.
type Trace struct {
	// Node being monitored.
	Node *graph.Node

	// StackTrace of where the Trace call was made.
	StackTrace error

	// Scope is a stack of scopes, pushed with PushScope or given to Trace.
	Scope []string
}

// New creates a NanLogger with DefaultHandler.
func New() *NanLogger {
	return &NanLogger{
		handler: DefaultHandler,
	}
}

// HandlerFn is the type of function to handle NaN traces. value is the first NaN or infinity found
// in the output of the traced node.
type HandlerFn func(value float64, info *Trace)

// WithHandler sets the function called when a NaN or infinity is observed. The default is DefaultHandler.
func (l *NanLogger) WithHandler(handler HandlerFn) *NanLogger {
	if l == nil {
		return nil
	}
	l.handler = handler
	return l
}

// Trace the node: Check will report it if its output holds a NaN or infinity.
// The optional scope replaces the current scope stack (see PushScope) for this node.
//
// A nil NanLogger is valid, and it will simply be a no-op.
func (l *NanLogger) Trace(node *graph.Node, scope ...string) {
	if l == nil || node == nil {
		return
	}
	trace := &Trace{
		Node:       node,
		StackTrace: errors.Errorf("Stack-trace"),
	}
	if len(scope) == 0 {
		trace.Scope = slices.Clone(l.currentScope)
	} else {
		trace.Scope = slices.Clone(scope)
	}
	l.traces = append(l.traces, trace)
}

// PushScope to current scope stack.
// These values are added by default to any new Trace.
//
// A nil NanLogger is valid, and it will simply be a no-op.
func (l *NanLogger) PushScope(scope string) {
	if l == nil {
		return
	}
	l.currentScope = append(l.currentScope, scope)
}

// PopScope removes the last entry in the current scope stack.
//
// A nil NanLogger is valid, and it will simply be a no-op.
func (l *NanLogger) PopScope() {
	if l == nil {
		return
	}
	if len(l.currentScope) == 0 {
		klog.Warningf("NanLogger.PopScope() called on an already empty scope stack!?")
		return
	}
	l.currentScope = l.currentScope[:len(l.currentScope)-1]
}

// NumTraces returns the number of traced nodes.
func (l *NanLogger) NumTraces() int {
	if l == nil {
		return 0
	}
	return len(l.traces)
}

// Check the outputs of the traced nodes, in the order they were traced, and returns the first one holding
// a NaN or infinity, along with that value. It returns a nil trace if none is found.
//
// Nodes whose output has not been computed yet are skipped.
func (l *NanLogger) Check() (value float64, trace *Trace) {
	if l == nil {
		return 0, nil
	}
	for _, trace := range l.traces {
		if value, found := firstInvalid(trace.Node.Output()); found {
			return value, trace
		}
	}
	return 0, nil
}

// firstInvalid returns the first NaN or infinity in m.
func firstInvalid(m *mat.Dense) (value float64, found bool) {
	if m == nil || m.IsEmpty() {
		return 0, false
	}
	rows, _ := m.Dims()
	for row := range rows {
		for _, v := range m.RawRowView(row) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return v, true
			}
		}
	}
	return 0, false
}

// AttachToLoop registers a hook in the loop that checks the traced nodes after every training step.
// If one holds a NaN or infinity, the handler is called and the training is interrupted with an error.
//
// A nil NanLogger is valid, and it will simply be a no-op.
func (l *NanLogger) AttachToLoop(loop *train.Loop) {
	if l == nil {
		return
	}
	// Run before other hooks, that could choke on the NaN.
	loop.OnStep("nanlogger", -1000, func(loop *train.Loop, _ []float64) error {
		value, trace := l.Check()
		if trace == nil {
			return nil
		}
		l.handler(value, trace)
		return errors.Errorf("NanLogger observed %f in node %s at step %d (scope %q)",
			value, trace.Node, loop.LoopStep, trace.Scope)
	})
}

// DefaultHandler logs all the information about the node where a NaN or infinity was observed.
func DefaultHandler(value float64, info *Trace) {
	var scopeTxt string
	if len(info.Scope) > 0 {
		scopeTxt = fmt.Sprintf("Scope:\n\t%s\n", strings.Join(info.Scope, "\n\t"))
	}
	klog.Errorf("NanLogger observed a %f in the output of node %s:\n%sStack-trace of node:\n%+v\n",
		value, info.Node, scopeTxt, info.StackTrace)
}
