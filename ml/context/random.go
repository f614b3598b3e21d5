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
	"math/rand/v2"

	"k8s.io/klog/v2"
)

// ParamInitialSeed is the key for the hyperparameter to use for initial seed (int64). If not set,
// a random seed is used, which makes the initialization non-deterministic. Set it for a deterministic
// (as long as the model doesn't change) initialization.
var ParamInitialSeed = "initializers_seed"

// Rand returns the context random number generator, used by variable initializers.
//
// It is created on first use: see RngStateReset.
func (ctx *Context) Rand() *rand.Rand {
	if ctx.store.rng == nil {
		ctx.RngStateReset()
	}
	return ctx.store.rng
}

// RngStateReset resets the context random number generator.
//
// If ParamInitialSeed is set, it is used as seed. Otherwise, a random seed is used.
func (ctx *Context) RngStateReset() {
	seedAny, found := ctx.GetParam(ParamInitialSeed)
	if !found || seedAny == nil {
		ctx.store.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		return
	}
	seed, ok := toInt64(seedAny)
	if !ok {
		klog.Errorf("Seed in %q not an integer (%T), using 0 instead", ParamInitialSeed, seedAny)
	}
	ctx.RngStateFromSeed(seed)
}

// RngStateFromSeed initializes the context random number generator with a static seed.
// If it was already created, it is reset.
func (ctx *Context) RngStateFromSeed(seed int64) {
	ctx.store.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), v == float64(int64(v))
	}
	return 0, false
}
