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

	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/types/shapes"
	"gonum.org/v1/gonum/mat"
)

// Variable is a named, scoped, trainable value registered in a Context.
//
// It wraps the graph leaf holding its value: use Node to connect it to a graph. Every
// use of the variable shares the same graph.Node, so its gradients accumulate in one State.
type Variable struct {
	name, scope string
	node        *graph.Node
}

// Name of the variable within the scope.
func (v *Variable) Name() string { return v.name }

// Scope where the variable was created.
func (v *Variable) Scope() string { return v.scope }

// ScopeAndName is a convenience function that returns the combined scope and name of the variable.
func (v *Variable) ScopeAndName() string { return JoinScope(v.scope, v.name) }

// String implements stringer.
func (v *Variable) String() string {
	return fmt.Sprintf("%s%s", v.ScopeAndName(), v.Shape())
}

// Shape of the variable.
func (v *Variable) Shape() shapes.Shape { return v.node.Shape() }

// Node returns the graph leaf (a graph.Variable) holding the value.
func (v *Variable) Node() *graph.Node { return v.node }

// Value returns the current value of the variable. It's owned by the variable and it's
// updated in place by the optimizer: make a copy (mat.DenseCopyOf) to keep a snapshot.
func (v *Variable) Value() *mat.Dense { return v.node.Output() }

// SetValue copies value into the variable. It panics if the shape differs.
func (v *Variable) SetValue(value mat.Matrix) { v.node.SetValue(value) }
