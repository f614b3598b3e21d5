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

// Package context defines the Context and Variable types: Context organizes variables
// and hyperparameters in scopes, so model-building functions can find their configuration
// and create their trainable weights without having to thread them through every call.
//
// Example:
//
//	ctx := context.New()
//	ctx.SetParam("hidden_size", 8)
//	ctx.SetParam(optimizers.ParamLearningRate, 0.01)
//
//	func ModelGraph(ctx *context.Context, x *graph.Node) *graph.Node {
//		hidden := layers.DenseFromContext(ctx.In("hidden"), x)
//		{
//			ctx := ctx.In("output")  // Temporary reference, same data, different scope.
//			ctx.SetParam("activation", "none")
//			return layers.Dense(ctx, hidden, 1)
//		}
//	}
//
// Context is not safe for concurrent use.
package context

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context/initializers"
	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/mat"
)

// VariableInitializer builds the initial value of a new variable. See package initializers.
type VariableInitializer = initializers.VariableInitializer

const (
	// ScopeSeparator separates the elements of a scope path. It can't be used in scope names.
	ScopeSeparator = "/"

	// RootScope is the scope of a new Context.
	RootScope = ScopeSeparator
)

// Context is a reference to a shared store of hyperparameters and variables, positioned at a scope.
//
// Methods like In, Reuse, Checked and WithInitializer return new references to the same store,
// and leave the receiver unchanged. Parameters and variables created through any reference are
// visible to all of them.
type Context struct {
	scope string

	// reuse and checked define which variables can be returned by VariableWithShape and
	// VariableWithValue. See Reuse and Checked.
	reuse, checked bool

	initializer VariableInitializer

	store *store
}

// store is the content shared by all references of a Context.
type store struct {
	params *ScopedParams

	// variables in creation order, and indexed by their full path (see Variable.ScopeAndName).
	variables []*Variable
	byPath    map[string]*Variable

	// rng used by the initializers. Created on first use, see Context.Rand.
	rng *rand.Rand
}

// New creates an empty Context at the RootScope, using DefaultInitializer for new variables.
func New() *Context {
	return &Context{
		scope:       RootScope,
		checked:     true,
		initializer: DefaultInitializer,
		store: &store{
			params: NewScopedParams(),
			byPath: make(map[string]*Variable),
		},
	}
}

// with returns a new reference to the same store, after applying change to it.
func (ctx *Context) with(change func(ref *Context)) *Context {
	ref := *ctx
	change(&ref)
	return &ref
}

// JoinScope appends name to scope.
func JoinScope(scope, name string) string {
	switch {
	case scope == "":
		return name
	case strings.HasSuffix(scope, ScopeSeparator):
		return scope + name
	default:
		return scope + ScopeSeparator + name
	}
}

// Scope of this reference, an absolute path like "/lstm/cell".
func (ctx *Context) Scope() string { return ctx.scope }

// In returns a reference to the sub-scope name of the current scope. name can't be empty or
// contain ScopeSeparator.
func (ctx *Context) In(name string) *Context {
	if name == "" || strings.Contains(name, ScopeSeparator) {
		exceptions.Panicf("Context.In(%q): scope names must be non-empty and can't contain %q", name, ScopeSeparator)
	}
	return ctx.InAbsPath(JoinScope(ctx.scope, name))
}

// Inf is like In, with the scope name formatted with fmt.Sprintf.
func (ctx *Context) Inf(format string, args ...any) *Context {
	return ctx.In(fmt.Sprintf(format, args...))
}

// InAbsPath returns a reference at the given absolute scope path, which must start with ScopeSeparator.
func (ctx *Context) InAbsPath(scopePath string) *Context {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		exceptions.Panicf("Context.InAbsPath(%q): absolute scope paths must start with %q", scopePath, ScopeSeparator)
	}
	return ctx.with(func(ref *Context) { ref.scope = scopePath })
}

// Reuse returns a reference that only returns existing variables: asking for a variable that
// doesn't exist panics. It has no effect if the reference is not Checked.
func (ctx *Context) Reuse() *Context {
	return ctx.with(func(ref *Context) { ref.reuse = true })
}

// Unique returns a reference that only creates new variables: asking for an existing variable
// panics. This is the default. It has no effect if the reference is not Checked.
func (ctx *Context) Unique() *Context {
	if !ctx.reuse {
		return ctx
	}
	return ctx.with(func(ref *Context) { ref.reuse = false })
}

// IsReuse reports whether the reference was set with Reuse.
func (ctx *Context) IsReuse() bool { return ctx.reuse }

// Checked returns a reference that enforces (checked=true, the default) or ignores the Reuse
// and Unique settings. Unchecked references return existing variables and create missing ones.
func (ctx *Context) Checked(checked bool) *Context {
	if ctx.checked == checked {
		return ctx
	}
	return ctx.with(func(ref *Context) { ref.checked = checked })
}

// IsChecked reports whether the reference enforces Reuse and Unique.
func (ctx *Context) IsChecked() bool { return ctx.checked }

// WithInitializer returns a reference that initializes new variables with initializer.
func (ctx *Context) WithInitializer(initializer VariableInitializer) *Context {
	if initializer == nil {
		exceptions.Panicf("Context.WithInitializer(nil)")
	}
	return ctx.with(func(ref *Context) { ref.initializer = initializer })
}

// GetParam returns the value of the hyperparameter key set in the current scope, or in the closest
// parent scope where it is set. E.g. from "/a/b" it looks into "/a/b", "/a" and "/", in that order.
func (ctx *Context) GetParam(key string) (value any, found bool) {
	return ctx.store.params.Get(ctx.scope, key)
}

// MustGetParam returns the hyperparameter key (see Context.GetParam) as a T. Values of a different
// but convertible type are converted, e.g. an int to a float64.
//
// It panics if the key is not set, or if its value can't be converted to T.
func MustGetParam[T any](ctx *Context, key string) T {
	var zero T
	valueAny, found := ctx.GetParam(key)
	if !found {
		exceptions.Panicf("hyperparameter %q (%T) not set in scope %q or its parents", key, zero, ctx.scope)
	}
	if value, ok := valueAny.(T); ok {
		return value
	}
	targetType := reflect.TypeOf(zero)
	if valueAny == nil || !reflect.ValueOf(valueAny).CanConvert(targetType) {
		exceptions.Panicf("hyperparameter %q in scope %q is (%T) %#v, which can't be converted to %T",
			key, ctx.scope, valueAny, valueAny, zero)
	}
	return reflect.ValueOf(valueAny).Convert(targetType).Interface().(T)
}

// GetParamOr is like MustGetParam, but returns defaultValue if the key is not set, or set to nil.
func GetParamOr[T any](ctx *Context, key string, defaultValue T) T {
	if valueAny, found := ctx.GetParam(key); !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](ctx, key)
}

// SetParam sets the hyperparameter key in the current scope. It is visible from this scope and
// its sub-scopes.
func (ctx *Context) SetParam(key string, value any) {
	ctx.store.params.Set(ctx.scope, key, value)
}

// SetParams sets several hyperparameters in the current scope.
func (ctx *Context) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		ctx.SetParam(key, value)
	}
}

// EnumerateParams calls fn for every hyperparameter of every scope, sorted by scope and key.
func (ctx *Context) EnumerateParams(fn func(scope, key string, value any)) {
	ctx.store.params.Enumerate(fn)
}

// InspectVariable returns the variable name of scope, or nil if there is none.
func (ctx *Context) InspectVariable(scope, name string) *Variable {
	return ctx.store.byPath[JoinScope(scope, name)]
}

// InspectVariableInScope is like InspectVariable, in the current scope.
func (ctx *Context) InspectVariableInScope(name string) *Variable {
	return ctx.InspectVariable(ctx.scope, name)
}

// existingVariable returns the variable name of the current scope, or nil if it must be created.
// It panics if the Reuse or Unique setting is violated.
func (ctx *Context) existingVariable(name string, shape shapes.Shape) *Variable {
	v := ctx.InspectVariableInScope(name)
	if ctx.checked {
		switch {
		case v == nil && ctx.reuse:
			exceptions.Panicf("variable %q of scope %q doesn't exist, and the Context is set to Reuse", name, ctx.scope)
		case v != nil && !ctx.reuse:
			exceptions.Panicf("variable %q of scope %q already exists -- use Context.Reuse() or Context.Checked(false) to reuse it",
				name, ctx.scope)
		}
	}
	if v != nil && !v.Shape().Equal(shape) {
		exceptions.Panicf("variable %q of scope %q has shape %s, but shape %s was requested", name, ctx.scope, v.Shape(), shape)
	}
	return v
}

// VariableWithShape returns the variable name of the current scope, creating it if needed with
// the reference's initializer.
//
// A Checked reference (the default) panics if the variable exists and the reference is not set to
// Reuse, or if it doesn't exist and the reference is set to Reuse. Existing variables must have
// the requested shape.
func (ctx *Context) VariableWithShape(name string, shape shapes.Shape) *Variable {
	if !shape.Ok() {
		exceptions.Panicf("Context.VariableWithShape(%q): invalid shape %s", name, shape)
	}
	if v := ctx.existingVariable(name, shape); v != nil {
		return v
	}
	return ctx.newVariable(name, ctx.initializer(ctx.Rand(), shape))
}

// VariableWithValue is like VariableWithShape, but new variables are initialized with a copy of value.
// The value is ignored if the variable already exists.
func (ctx *Context) VariableWithValue(name string, value mat.Matrix) *Variable {
	if v := ctx.existingVariable(name, shapes.Make(value.Dims())); v != nil {
		return v
	}
	return ctx.newVariable(name, value)
}

func (ctx *Context) newVariable(name string, value mat.Matrix) *Variable {
	v := &Variable{name: name, scope: ctx.scope, node: graph.Variable(value)}
	ctx.store.byPath[v.ScopeAndName()] = v
	ctx.store.variables = append(ctx.store.variables, v)
	return v
}

// EnumerateVariables calls fn for every variable, in creation order.
func (ctx *Context) EnumerateVariables(fn func(v *Variable)) {
	for _, v := range ctx.store.variables {
		fn(v)
	}
}

// EnumerateVariablesInScope is like EnumerateVariables, restricted to the variables of the current
// scope and its sub-scopes.
func (ctx *Context) EnumerateVariablesInScope(fn func(v *Variable)) {
	prefix := JoinScope(ctx.scope, "")
	for _, v := range ctx.store.variables {
		if v.scope == ctx.scope || strings.HasPrefix(v.scope, prefix) {
			fn(v)
		}
	}
}

// NumVariables returns the number of variables created.
func (ctx *Context) NumVariables() int { return len(ctx.store.variables) }

// NumParameters returns the number of scalar values held by all variables.
func (ctx *Context) NumParameters() (total int) {
	ctx.EnumerateVariables(func(v *Variable) { total += v.Shape().Size() })
	return total
}

// Memory returns the bytes used by the values of all variables.
func (ctx *Context) Memory() (total uintptr) {
	ctx.EnumerateVariables(func(v *Variable) { total += v.Shape().Memory() })
	return total
}
