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

import "github.com/redtea-ml/redtea/ml/context/initializers"

// DefaultInitializer is the initializer of new contexts.
// You can always set your own initializer with Context.WithInitializer.
//
// See package initializers for various standard initializers.
//
// It defaults to a Glorot (Xavier) uniform initializer.
var DefaultInitializer VariableInitializer = initializers.GlorotUniform
