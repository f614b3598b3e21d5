package metrics

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStreamingMedian(t *testing.T) {
	// Create an asymmetric sequence with known median:
	var metric StreamingMedian

	// Sample from 0.01 < r < 1.0 randomly (so median r is expected to be 0.99/2 = 0.495),
	// and then feed StreamingMedian values of 1/r (so median is expected to be 1/0.495 = 2.0202020...).
	const numExamples = 100_001
	rng := rand.New(rand.NewPCG(42, 0))
	values := make([]float64, 0, numExamples)
	for range numExamples {
		r := rng.Float64()*0.99 + 0.01
		r = 1 / r
		values = append(values, r)
		metric.Add(r)
	}
	slices.Sort(values)
	want := values[numExamples/2]
	require.InDelta(t, want, metric.Median(), 0.01)

	metric.Reset()
	require.Equal(t, 0.0, metric.Median())
	metric.Add(3)
	require.Equal(t, 3.0, metric.Median())
}

func TestMedianMetric(t *testing.T) {
	metric := NewMedianAbsoluteError("Median Absolute Error", "medae")
	labels := []*mat.Dense{mat.NewDense(1, 1, []float64{0})}
	var value float64
	for ii := range 1010 {
		prediction := -float64((ii * 37) % 101)
		value = metric.Update(labels, []*mat.Dense{mat.NewDense(1, 1, []float64{prediction})})
	}
	require.InDelta(t, 50.0, value, 0.5)
	metric.Reset()
	require.Equal(t, 7.0, metric.Update(labels, []*mat.Dense{mat.NewDense(1, 1, []float64{7})}))
}
