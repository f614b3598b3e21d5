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
	"cmp"
	"maps"
	"slices"
	"strings"
)

// ScopedParams holds hyperparameters set at different scopes. Looking up a key in a scope
// returns the value set in that scope or in the closest parent scope that has it.
//
// Example, with the params:
//
//	"/":    {"hidden_size": 8, "learning_rate": 0.01}
//	"/lstm": {"hidden_size": 4}
//
//	Get("/lstm/cell", "hidden_size")   -> 4
//	Get("/lstm/cell", "learning_rate") -> 0.01
//	Get("/output", "hidden_size")      -> 8
//
// Scopes are absolute paths separated by ScopeSeparator, the root scope being RootScope.
type ScopedParams struct {
	values map[paramKey]any
}

// paramKey identifies a parameter set in a scope.
type paramKey struct {
	scope, key string
}

// NewScopedParams creates an empty ScopedParams.
func NewScopedParams() *ScopedParams {
	return &ScopedParams{values: make(map[paramKey]any)}
}

// Set the value of key in scope. Sub-scopes without their own value for key will see it.
func (p *ScopedParams) Set(scope, key string, value any) {
	p.values[paramKey{scope, key}] = value
}

// Get the value of key in scope, or in the closest parent scope where it is set.
func (p *ScopedParams) Get(scope, key string) (value any, found bool) {
	for {
		if value, found = p.values[paramKey{scope, key}]; found {
			return value, true
		}
		if scope == RootScope || scope == "" {
			return nil, false
		}
		scope = parentScope(scope)
	}
}

// parentScope of a scope other than the root: "/a/b" -> "/a", "/a" -> "/".
func parentScope(scope string) string {
	idx := strings.LastIndex(scope, ScopeSeparator)
	if idx <= 0 {
		return RootScope
	}
	return scope[:idx]
}

// Enumerate calls fn for every parameter set, sorted by scope and then by key.
func (p *ScopedParams) Enumerate(fn func(scope, key string, value any)) {
	keys := slices.SortedFunc(maps.Keys(p.values), func(a, b paramKey) int {
		return cmp.Or(cmp.Compare(a.scope, b.scope), cmp.Compare(a.key, b.key))
	})
	for _, k := range keys {
		fn(k.scope, k.key, p.values[k])
	}
}
