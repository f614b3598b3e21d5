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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const csvContents = `1,2,3
4,5,9
7,8,15
`

func TestReadCSV(t *testing.T) {
	inputs, labels, err := ReadCSV(strings.NewReader(csvContents))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4, 5, 7, 8}, inputs.RawMatrix().Data)
	rows, cols := labels.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 1, cols)
	assert.Equal(t, []float64{3, 9, 15}, labels.RawMatrix().Data)

	_, _, err = ReadCSV(strings.NewReader(""))
	require.Error(t, err, "empty CSV")
	_, _, err = ReadCSV(strings.NewReader("1,2\n3,x\n"))
	require.ErrorContains(t, err, "row 2, column 2")
	_, _, err = ReadCSV(strings.NewReader("1\n2\n"))
	require.ErrorContains(t, err, "at least 2 columns")
	_, _, err = ReadCSV(strings.NewReader("1,2\n3,4,5\n"))
	require.Error(t, err, "rows with different number of fields")
}

func TestLoadCSV(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(filePath, []byte(csvContents), 0644))
	inputs, labels, err := LoadCSV(filePath)
	require.NoError(t, err)
	assert.Equal(t, 5.0, inputs.At(1, 1))
	assert.Equal(t, 15.0, labels.At(2, 0))

	_, _, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

// sequentialData returns n examples where inputs are [i, 10*i] and labels are [-i].
func sequentialData(n int) (inputs, labels *mat.Dense) {
	inputs = mat.NewDense(n, 2, nil)
	labels = mat.NewDense(n, 1, nil)
	for ii := range n {
		inputs.SetRow(ii, []float64{float64(ii), float64(10 * ii)})
		labels.Set(ii, 0, -float64(ii))
	}
	return
}

// yieldAll reads the dataset until io.EOF, and returns the label values of each batch.
func yieldAll(t *testing.T, ds *InMemoryDataset) (batches [][]float64) {
	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		require.Equal(t, ds, spec)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 1)
		batch := slices.Clone(labels[0].RawMatrix().Data)
		for ii, label := range batch {
			assert.Equal(t, -label, inputs[0].At(ii, 0))
			assert.Equal(t, -10*label, inputs[0].At(ii, 1))
		}
		batches = append(batches, batch)
	}
}

func TestInMemory(t *testing.T) {
	inputs, labels := sequentialData(5)
	ds := InMemory("seq", inputs, labels)
	assert.Equal(t, "seq", ds.Name())
	assert.Equal(t, 5, ds.NumExamples())

	// One example at a time.
	assert.Equal(t, [][]float64{{0}, {-1}, {-2}, {-3}, {-4}}, yieldAll(t, ds))
	_, _, _, err := ds.Yield()
	require.ErrorIs(t, err, io.EOF, "exhausted until Reset")

	ds.Reset()
	ds.BatchSize(2, false)
	assert.Equal(t, [][]float64{{0, -1}, {-2, -3}, {-4}}, yieldAll(t, ds))

	ds.Reset()
	ds.BatchSize(2, true)
	assert.Equal(t, [][]float64{{0, -1}, {-2, -3}}, yieldAll(t, ds))

	// Batches are copies.
	ds.Reset()
	_, batchInputs, _, err := ds.Yield()
	require.NoError(t, err)
	batchInputs[0].Set(0, 0, 100)
	assert.Equal(t, 0.0, inputs.At(0, 0))
}

func TestInMemoryInfiniteAndShuffle(t *testing.T) {
	inputs, labels := sequentialData(6)
	ds := InMemory("seq", inputs, labels).BatchSize(4, true).Infinite(true)
	for range 10 {
		_, _, batchLabels, err := ds.Yield()
		require.NoError(t, err)
		assert.Equal(t, []float64{0, -1, -2, -3}, batchLabels[0].RawMatrix().Data)
	}

	ds = InMemory("shuffled", inputs, labels).BatchSize(3, false).Shuffle().WithRand(rand.New(rand.NewPCG(42, 0)))
	batches := yieldAll(t, ds)
	require.Len(t, batches, 2)
	all := slices.Concat(batches...)
	slices.Sort(all)
	assert.Equal(t, []float64{-5, -4, -3, -2, -1, 0}, all, "each example exactly once per epoch")

	// Same seed, same order.
	other := InMemory("shuffled", inputs, labels).BatchSize(3, false).Shuffle().WithRand(rand.New(rand.NewPCG(42, 0)))
	assert.Equal(t, batches, yieldAll(t, other))
}

func TestInMemoryPanics(t *testing.T) {
	inputs, labels := sequentialData(3)
	assert.Panics(t, func() { InMemory("nil", nil, labels) })
	assert.Panics(t, func() { InMemory("mismatch", inputs, mat.NewDense(2, 1, nil)) })
	ds := InMemory("seq", inputs, labels)
	assert.Panics(t, func() { ds.BatchSize(-1, false) })
	assert.Panics(t, func() { ds.BatchSize(4, true) })
	assert.NotPanics(t, func() { ds.BatchSize(4, false) })
}

func TestDownloadAndChecksum(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, csvContents)
	}))
	defer server.Close()
	hash := sha256.Sum256([]byte(csvContents))
	checkHash := hex.EncodeToString(hash[:])

	dir := t.TempDir()
	assert.True(t, IsURL(server.URL+"/data.csv"))
	assert.False(t, IsURL(dir))

	filePath := filepath.Join(dir, "sub", "data.csv")
	assert.False(t, FileExists(filePath))
	require.NoError(t, DownloadIfMissing(server.URL+"/data.csv", filePath, checkHash, false))
	assert.True(t, FileExists(filePath))
	contents, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, csvContents, string(contents))

	// File is not downloaded again.
	require.NoError(t, DownloadIfMissing(server.URL+"/missing", filePath, "", false))

	// Wrong checksum removes the file.
	require.Error(t, ValidateChecksum(filePath, strings.Repeat("0", 64)))
	assert.False(t, FileExists(filePath))

	_, err = Download(server.URL+"/missing", filepath.Join(dir, "missing.csv"), false)
	require.ErrorContains(t, err, "404")

	size, err := Download(server.URL+"/data.csv", filepath.Join(dir, "bar.csv"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(len(csvContents)), size)
}
