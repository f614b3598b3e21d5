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

package data

import (
	"io"
	"math/rand/v2"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/redtea-ml/redtea/ml/train"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// InMemoryDataset is a train.Dataset that holds all its examples in memory, as one inputs matrix and one labels
// matrix with one example per row.
//
// It supports batching and shuffling. Batches are copies, so they can be kept by the caller.
type InMemoryDataset struct {
	name           string
	inputs, labels *mat.Dense
	numExamples    int

	// muSampling serializes the sampling information, all the member variables below.
	muSampling sync.Mutex

	// batchSize to yield. If set to 0 yields only one example at a time.
	batchSize int

	// dropIncompleteBatch, when there are not enough remaining examples in the epoch.
	dropIncompleteBatch bool

	// next record to be sampled. If shuffle is given, this is an index in shuffle.
	// If it is set to -1, it means the dataset has been exhausted already.
	next     int
	shuffle  []int
	infinite bool
	rng      *rand.Rand
}

var _ train.Dataset = (*InMemoryDataset)(nil)

// InMemory creates a dataset with the given inputs and labels, one example per row. They must have the
// same number of rows. The matrices are not copied, and they shouldn't be changed while the dataset is in use.
func InMemory(name string, inputs, labels *mat.Dense) *InMemoryDataset {
	if inputs == nil || labels == nil {
		exceptions.Panicf("data.InMemory(%q): inputs and labels must be given", name)
	}
	numExamples, _ := inputs.Dims()
	if labelRows, _ := labels.Dims(); labelRows != numExamples {
		exceptions.Panicf("data.InMemory(%q): inputs have %d examples (rows), but labels have %d", name, numExamples, labelRows)
	}
	return &InMemoryDataset{
		name:        name,
		inputs:      inputs,
		labels:      labels,
		numExamples: numExamples,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Name implements train.Dataset.
func (mds *InMemoryDataset) Name() string {
	return mds.name
}

// NumExamples returns the number of examples (rows) in the dataset.
func (mds *InMemoryDataset) NumExamples() int {
	return mds.numExamples
}

// Reset implements train.Dataset.
func (mds *InMemoryDataset) Reset() {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.next = 0
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
}

// BatchSize configures the InMemoryDataset to return batches of the given size. If dropIncompleteBatch is set to true,
// it will simply drop examples if there are not enough to fill a batch -- this can only happen on the last
// batch of an epoch. Otherwise, it will return a partially filled batch.
//
// Models built on Constants of a fixed shape require dropIncompleteBatch.
//
// If n is set to 0, it reverts back to yielding one example at a time.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) BatchSize(n int, dropIncompleteBatch bool) *InMemoryDataset {
	if n < 0 {
		exceptions.Panicf("InMemoryDataset.BatchSize(%d): batch size must be >= 0", n)
	}
	if dropIncompleteBatch && n > mds.numExamples {
		exceptions.Panicf("InMemoryDataset.BatchSize(%d): dataset %q has only %d examples, it would never yield a full batch",
			n, mds.name, mds.numExamples)
	}
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.batchSize = n
	mds.dropIncompleteBatch = dropIncompleteBatch
	return mds
}

// Shuffle configures the InMemoryDataset to shuffle the order of the data. It returns random elements
// without replacement.
//
// At each call to Reset() it is reshuffled. It happens automatically if dataset is configured to loop.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Shuffle() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.shuffleLocked()
	return mds
}

// WithRand sets the random number generator (RNG) used for shuffling. This allows for repeatable
// deterministic sampling. If the dataset is configured with Shuffle, this re-shuffles it immediately.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) WithRand(rng *rand.Rand) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.rng = rng
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
	return mds
}

// Infinite sets whether the dataset should loop indefinitely. The default is `infinite = false`, which
// causes the dataset to going through the data only once before returning io.EOF.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.infinite = infinite
	return mds
}

// shuffleLocked shuffles dataset yield order. It assumed muSampling is locked.
func (mds *InMemoryDataset) shuffleLocked() {
	if mds.shuffle == nil {
		mds.shuffle = make([]int, mds.numExamples)
	}
	for ii := range mds.shuffle {
		mds.shuffle[ii] = ii
	}
	mds.rng.Shuffle(len(mds.shuffle), func(i, j int) {
		mds.shuffle[i], mds.shuffle[j] = mds.shuffle[j], mds.shuffle[i]
	})
}

// indicesNextYield retrieve the indices for the next Yield call.
func (mds *InMemoryDataset) indicesNextYield() (indices []int) {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	if mds.next == -1 {
		return // dataset already exhausted.
	}
	n := max(mds.batchSize, 1)
	indices = make([]int, 0, n)
	for mds.next < mds.numExamples && len(indices) < n {
		if len(mds.shuffle) > 0 {
			indices = append(indices, mds.shuffle[mds.next])
		} else {
			indices = append(indices, mds.next)
		}
		mds.next++
	}
	if len(indices) < n && mds.dropIncompleteBatch {
		// Drop the incomplete batch.
		indices = nil
	}
	if mds.next >= mds.numExamples {
		mds.next = -1
	}
	return
}

// Yield implements train.Dataset. It returns one input matrix and one label matrix, with one row per example
// of the batch.
func (mds *InMemoryDataset) Yield() (spec any, inputs, labels []*mat.Dense, err error) {
	indices := mds.indicesNextYield()
	if len(indices) == 0 {
		if !mds.infinite {
			err = io.EOF
			return
		}

		// If looping infinitely, automatically Reset and pull new indices.
		mds.Reset()
		indices = mds.indicesNextYield()
		if len(indices) == 0 {
			klog.Errorf("InMemoryDataset %q configured for infinite loop, but Reset failed to generate new examples!?", mds.name)
			err = io.EOF
			return
		}
	}
	spec = mds
	inputs = []*mat.Dense{gatherRows(mds.inputs, indices)}
	labels = []*mat.Dense{gatherRows(mds.labels, indices)}
	return
}

// gatherRows returns a new matrix with the given rows of m.
func gatherRows(m *mat.Dense, indices []int) *mat.Dense {
	_, cols := m.Dims()
	gathered := mat.NewDense(len(indices), cols, nil)
	for ii, row := range indices {
		gathered.SetRow(ii, m.RawRowView(row))
	}
	return gathered
}
