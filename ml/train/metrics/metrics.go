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

// Package metrics holds a library of metrics, used by train.Trainer to report the progress of training
// beyond the loss.
package metrics

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Interface of a metric tracked by train.Trainer.
type Interface interface {
	// Name of the metric, e.g. "Mean Absolute Error".
	Name() string

	// ShortName to use in progress bars and other tight spaces, e.g. "mae".
	ShortName() string

	// MetricType groups metrics measuring the same kind of quantity, e.g. LossMetricType. Metrics
	// of the same type are drawn in the same chart.
	MetricType() string

	// Update takes the labels and predictions of a batch and returns the current value of the metric.
	Update(labels, predictions []*mat.Dense) float64

	// PrettyPrint formats a value of the metric.
	PrettyPrint(value float64) string

	// Reset the state accumulated by Update, e.g. before a new evaluation.
	Reset()
}

// Metric types used by the metrics of this package.
const (
	LossMetricType     = "loss"
	AccuracyMetricType = "accuracy"
)

// BaseMetricFn calculates the value of a metric on one batch.
type BaseMetricFn func(labels, predictions []*mat.Dense) float64

// PrettyPrintFn formats a metric value.
type PrettyPrintFn func(value float64) string

// aggregator combines the values of successive batches into the value of a metric.
type aggregator interface {
	add(value, batchSize float64) float64
	reset()
}

// metric implements Interface for a BaseMetricFn and an aggregator.
type metric struct {
	name, shortName, metricType string
	fn                          BaseMetricFn
	pPrintFn                    PrettyPrintFn
	agg                         aggregator
}

func newMetric(name, shortName, metricType string, fn BaseMetricFn, pPrintFn PrettyPrintFn, agg aggregator) *metric {
	if pPrintFn == nil {
		pPrintFn = func(value float64) string { return fmt.Sprintf("%.3f", value) }
	}
	return &metric{name: name, shortName: shortName, metricType: metricType, fn: fn, pPrintFn: pPrintFn, agg: agg}
}

func (m *metric) Name() string                     { return m.name }
func (m *metric) ShortName() string                { return m.shortName }
func (m *metric) MetricType() string               { return m.metricType }
func (m *metric) PrettyPrint(value float64) string { return m.pPrintFn(value) }
func (m *metric) Reset()                           { m.agg.reset() }

func (m *metric) Update(labels, predictions []*mat.Dense) float64 {
	return m.agg.add(m.fn(labels, predictions), BatchSize(labels))
}

// lastBatch reports the value of the last batch only.
type lastBatch struct{}

func (lastBatch) add(value, _ float64) float64 { return value }
func (lastBatch) reset()                      {}

// NewBaseMetric creates a metric that reports metricFn on the last batch only.
// pPrintFn can be nil, in which case values are printed with 3 decimal places.
func NewBaseMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return newMetric(name, shortName, metricType, metricFn, pPrintFn, lastBatch{})
}

// runningMean is the mean over all examples seen since the last reset.
type runningMean struct {
	mean, count float64
}

func (a *runningMean) add(value, batchSize float64) float64 {
	a.count += batchSize
	a.mean += (value - a.mean) * batchSize / a.count
	return a.mean
}

func (a *runningMean) reset() { *a = runningMean{} }

// NewMeanMetric creates a metric that reports the mean of metricFn over all batches since the last
// Reset, weighted by the batch size (the number of rows of the first label).
// pPrintFn can be nil, in which case values are printed with 3 decimal places.
func NewMeanMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return newMetric(name, shortName, metricType, metricFn, pPrintFn, &runningMean{})
}

// BatchSize returns the number of rows of the first matrix, or 1 if there are none.
func BatchSize(data []*mat.Dense) float64 {
	if len(data) == 0 || data[0] == nil {
		return 1
	}
	rows, _ := data[0].Dims()
	return float64(rows)
}

// movingAverage is a plain mean of the first 1/weight batches, and an exponential moving
// average after that.
type movingAverage struct {
	weight, mean, count float64
}

func (a *movingAverage) add(value, _ float64) float64 {
	a.count++
	w := max(a.weight, 1/a.count)
	a.mean = a.mean*(1-w) + value*w
	return a.mean
}

func (a *movingAverage) reset() { a.mean, a.count = 0, 0 }

// NewExponentialMovingAverageMetric creates a metric that reports an exponential moving average of metricFn,
// where each new batch has weight newExampleWeight. The first batches are averaged plainly, until the
// weight of a new batch would drop below newExampleWeight.
//
// A typical newExampleWeight is 0.01: the smaller, the slower the average moves.
// pPrintFn can be nil, in which case values are printed with 3 decimal places.
func NewExponentialMovingAverageMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn, newExampleWeight float64) Interface {
	if newExampleWeight <= 0 || newExampleWeight > 1 {
		exceptions.Panicf("metric %q: newExampleWeight must be in (0, 1], got %g", name, newExampleWeight)
	}
	return newMetric(name, shortName, metricType, metricFn, pPrintFn, &movingAverage{weight: newExampleWeight})
}

// checkPair panics if there isn't exactly one label and one prediction of the same shape.
func checkPair(metric string, labels, predictions []*mat.Dense) (label, prediction *mat.Dense) {
	if len(labels) != 1 || len(predictions) != 1 {
		exceptions.Panicf("%s requires one label and one prediction, got %d and %d instead", metric, len(labels), len(predictions))
	}
	label, prediction = labels[0], predictions[0]
	lr, lc := label.Dims()
	pr, pc := prediction.Dims()
	if lr != pr || lc != pc {
		exceptions.Panicf("prediction [%d %d] and label [%d %d] have different shapes, can't calculate %s",
			pr, pc, lr, lc, metric)
	}
	return
}

// meanOfPairs returns the mean of fn applied to each pair of elements of label and prediction.
func meanOfPairs(label, prediction *mat.Dense, fn func(l, p float64) float64) float64 {
	rows, cols := label.Dims()
	var sum float64
	for row := range rows {
		p := prediction.RawRowView(row)
		for col, l := range label.RawRowView(row) {
			sum += fn(l, p[col])
		}
	}
	return sum / float64(rows*cols)
}

// MeanSquaredErrorFn can be used in combination with New*Metric functions to build metrics for the
// mean squared error between predictions and labels.
func MeanSquaredErrorFn(labels, predictions []*mat.Dense) float64 {
	label, prediction := checkPair("MeanSquaredError", labels, predictions)
	return meanOfPairs(label, prediction, func(l, p float64) float64 { return (p - l) * (p - l) })
}

// MeanAbsoluteErrorFn can be used in combination with New*Metric functions to build metrics for the
// mean absolute error between predictions and labels.
func MeanAbsoluteErrorFn(labels, predictions []*mat.Dense) float64 {
	label, prediction := checkPair("MeanAbsoluteError", labels, predictions)
	return meanOfPairs(label, prediction, func(l, p float64) float64 { return math.Abs(p - l) })
}

// BinaryAccuracyFn is the fraction of predictions (probabilities) within 0.5 of their {0, 1} label.
// A prediction of exactly 0.5 is always counted as wrong.
func BinaryAccuracyFn(labels, predictions []*mat.Dense) float64 {
	label, prediction := checkPair("BinaryAccuracy", labels, predictions)
	return meanOfPairs(label, prediction, func(l, p float64) float64 {
		if math.Abs(l-p) < 0.5 {
			return 1
		}
		return 0
	})
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", value*100.0)
}

// NewMeanBinaryAccuracy returns the mean of BinaryAccuracyFn over all batches since the last reset.
func NewMeanBinaryAccuracy(name, shortName string) Interface {
	return NewMeanMetric(name, shortName, AccuracyMetricType, BinaryAccuracyFn, accuracyPPrint)
}

// NewMovingAverageBinaryAccuracy returns a moving average of BinaryAccuracyFn, see NewExponentialMovingAverageMetric.
func NewMovingAverageBinaryAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, AccuracyMetricType, BinaryAccuracyFn, accuracyPPrint, newExampleWeight)
}

// NewMeanAbsoluteError returns a new mean absolute error metric with the given names.
func NewMeanAbsoluteError(name, shortName string) Interface {
	return NewMeanMetric(name, shortName, LossMetricType, MeanAbsoluteErrorFn, nil)
}

// NewMovingAverageMeanSquaredError returns a moving average of MeanSquaredErrorFn, see NewExponentialMovingAverageMetric.
func NewMovingAverageMeanSquaredError(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, LossMetricType, MeanSquaredErrorFn, nil, newExampleWeight)
}
