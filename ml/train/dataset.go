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

import "gonum.org/v1/gonum/mat"

// Dataset for a train.Trainer provides the data, one batch at a time, as matrices with one example per row.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Yield one "batch" (or a single example, if the dataset yields one at a time) of inputs and labels.
	// It returns io.EOF when the dataset is exhausted. spec is opaque to the Trainer, and passed along
	// to the model function when building the graph.
	//
	// The Trainer feeds the batches to fixed-shape Constants, so every batch of a Dataset must have the
	// same shape.
	Yield() (spec any, inputs, labels []*mat.Dense, err error)

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()
}
