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

// Package train holds tools to help run a training loop: the Trainer feeds batches of a Dataset into a
// model graph and runs one optimizer step per batch, and the Loop drives it, calling hooks
// (progress bars, plots, etc.) along the way.
package train

import (
	"io"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/graph"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/train/losses"
	"github.com/redtea-ml/redtea/ml/train/metrics"
	"github.com/redtea-ml/redtea/ml/train/optimizers"
	"gonum.org/v1/gonum/mat"
)

// ModelFn builds the model graph: it takes the input nodes (Constants fed with the batches of the
// Dataset) and returns the predictions. The first prediction is compared with the first label by the loss.
//
// Variables should be created with the given context.
type ModelFn func(ctx *context.Context, spec any, inputs []*graph.Node) (predictions []*graph.Node)

// Trainer builds the model graph once, on the first batch, and then feeds every new batch into it,
// running one optimizer step per train batch.
type Trainer struct {
	ctx       *context.Context
	modelFn   ModelFn
	lossFn    losses.LossFn
	optimizer *optimizers.Optimizer

	// Built on the first batch.
	inputs, labels, predictions []*graph.Node
	loss                        *graph.Node

	batchLoss                 float64
	trainMetrics, evalMetrics []metrics.Interface
}

// NewTrainer constructs a trainer that can be used for training or evaluation.
//
// The graph is only built on the first call to TrainStep, EvalStep or Predict, from the shapes of
// the first batch. The optimizer is bound (Optimizer.Minimize) to the loss at that time.
//
// The train and eval metrics are prepended with the batch loss and a moving average of the train loss
// (for trainMetrics) or the mean loss (for evalMetrics), so the first metric is always the batch loss.
func NewTrainer(ctx *context.Context, modelFn ModelFn, lossFn losses.LossFn, optimizer *optimizers.Optimizer,
	trainMetrics, evalMetrics []metrics.Interface) *Trainer {
	if modelFn == nil || lossFn == nil || optimizer == nil {
		exceptions.Panicf("NewTrainer requires a model function, a loss function and an optimizer")
	}
	r := &Trainer{
		ctx:       ctx,
		modelFn:   modelFn,
		lossFn:    lossFn,
		optimizer: optimizer,
	}
	batchLossFn := func(_, _ []*mat.Dense) float64 { return r.batchLoss }
	r.trainMetrics = append([]metrics.Interface{
		metrics.NewBaseMetric("Batch Loss", "batch", metrics.LossMetricType, batchLossFn, nil),
		metrics.NewExponentialMovingAverageMetric("Moving Average Loss", "~loss", metrics.LossMetricType, batchLossFn, nil, 0.01),
	}, trainMetrics...)
	r.evalMetrics = append([]metrics.Interface{
		metrics.NewMeanMetric("Mean Loss", "#loss", metrics.LossMetricType, batchLossFn, nil),
	}, evalMetrics...)
	return r
}

// Context used to build the model.
func (r *Trainer) Context() *context.Context { return r.ctx }

// Optimizer used by the trainer.
func (r *Trainer) Optimizer() *optimizers.Optimizer { return r.optimizer }

// Loss node, or nil if the graph hasn't been built yet.
func (r *Trainer) Loss() *graph.Node { return r.loss }

// Predictions nodes, or nil if the graph hasn't been built yet.
func (r *Trainer) Predictions() []*graph.Node { return r.predictions }

// TrainMetrics returns the train metrics objects (not the values themselves).
func (r *Trainer) TrainMetrics() []metrics.Interface { return r.trainMetrics }

// EvalMetrics returns the eval metrics objects (not the values themselves).
func (r *Trainer) EvalMetrics() []metrics.Interface { return r.evalMetrics }

// ResetTrainMetrics resets the state of the train metrics, e.g. the moving average of the loss.
func (r *Trainer) ResetTrainMetrics() {
	for _, m := range r.trainMetrics {
		m.Reset()
	}
}

// ResetEvalMetrics resets the state of the eval metrics.
func (r *Trainer) ResetEvalMetrics() {
	for _, m := range r.evalMetrics {
		m.Reset()
	}
}

// build creates the input Constants from the given batch, and the model and loss graphs.
func (r *Trainer) build(spec any, inputs, labels []*mat.Dense) error {
	if len(inputs) == 0 {
		return errors.New("Trainer: dataset yielded no inputs")
	}
	return graph.Build(func() {
		r.inputs = make([]*graph.Node, len(inputs))
		for ii, input := range inputs {
			r.inputs[ii] = graph.Constant(input)
		}
		r.labels = make([]*graph.Node, len(labels))
		for ii, label := range labels {
			r.labels[ii] = graph.Constant(label)
		}
		predictions := r.modelFn(r.ctx, spec, r.inputs)
		if len(predictions) == 0 || len(r.labels) == 0 {
			exceptions.Panicf("Trainer: model returned %d predictions and dataset yielded %d labels, at least one of each is needed",
				len(predictions), len(r.labels))
		}
		r.loss = r.lossFn(predictions[0], r.labels[0])
		r.optimizer.Minimize(r.loss)
		r.predictions = predictions
	})
}

// feed sets the values of the input and label Constants, building the graph if needed.
func (r *Trainer) feed(spec any, inputs, labels []*mat.Dense) error {
	if r.loss == nil {
		return r.build(spec, inputs, labels)
	}
	if len(inputs) != len(r.inputs) || len(labels) != len(r.labels) {
		return errors.Errorf("Trainer: graph was built with %d inputs and %d labels, got %d inputs and %d labels",
			len(r.inputs), len(r.labels), len(inputs), len(labels))
	}
	err := exceptions.TryCatch[error](func() {
		for ii, input := range inputs {
			r.inputs[ii].SetValue(input)
		}
		for ii, label := range labels {
			r.labels[ii].SetValue(label)
		}
	})
	return errors.WithMessage(err, "Trainer: batches must all have the same shape")
}

// predictionOutputs returns the current outputs of the predictions and the label values.
func (r *Trainer) predictionOutputs() (labels, predictions []*mat.Dense) {
	labels = make([]*mat.Dense, len(r.labels))
	for ii, label := range r.labels {
		labels[ii] = label.Output()
	}
	predictions = make([]*mat.Dense, len(r.predictions))
	for ii, prediction := range r.predictions {
		predictions[ii] = prediction.Output()
	}
	return
}

// updateMetrics updates ms with the current labels and predictions, and returns their values.
func (r *Trainer) updateMetrics(ms []metrics.Interface) []float64 {
	labels, predictions := r.predictionOutputs()
	values := make([]float64, len(ms))
	for ii, m := range ms {
		values[ii] = m.Update(labels, predictions)
	}
	return values
}

// TrainStep runs one step of the optimizer on the given batch, and returns the values of the train metrics.
// The first is the batch loss, the mean of the loss matrix, computed before the update.
func (r *Trainer) TrainStep(spec any, inputs, labels []*mat.Dense) (metricsValues []float64, err error) {
	if err = r.feed(spec, inputs, labels); err != nil {
		return nil, err
	}
	if err = r.optimizer.Run(); err != nil {
		return nil, errors.WithMessage(err, "Trainer.TrainStep")
	}
	r.batchLoss = losses.Mean(r.loss.Output())
	return r.updateMetrics(r.trainMetrics), nil
}

// EvalStep computes the loss and the eval metrics on the given batch, without changing the model.
// Metrics that accumulate (like means) are updated: call ResetEvalMetrics to restart them.
func (r *Trainer) EvalStep(spec any, inputs, labels []*mat.Dense) (metricsValues []float64, err error) {
	if err = r.feed(spec, inputs, labels); err != nil {
		return nil, err
	}
	r.loss.Reset()
	r.loss.Forward()
	r.batchLoss = losses.Mean(r.loss.Output())
	return r.updateMetrics(r.evalMetrics), nil
}

// Eval returns the evaluation metrics over the whole dataset: it resets the eval metrics and the dataset,
// and runs EvalStep on every batch until io.EOF.
func (r *Trainer) Eval(ds Dataset) (metricsValues []float64, err error) {
	r.ResetEvalMetrics()
	ds.Reset()
	count := 0
	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): failed reading from Dataset", ds.Name())
		}
		metricsValues, err = r.EvalStep(spec, inputs, labels)
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(%q): batch #%d", ds.Name(), count)
		}
		count++
	}
	if count == 0 {
		return nil, errors.Errorf("Trainer.Eval(%q): dataset yielded no batches", ds.Name())
	}
	return metricsValues, nil
}

// Predict runs the model on the given inputs and returns a copy of the predictions. The labels are left unchanged.
func (r *Trainer) Predict(inputs []*mat.Dense) (predictions []*mat.Dense, err error) {
	if r.loss == nil {
		return nil, errors.New("Trainer.Predict: model not built yet, run TrainStep or EvalStep first")
	}
	if len(inputs) != len(r.inputs) {
		return nil, errors.Errorf("Trainer.Predict: model takes %d inputs, got %d", len(r.inputs), len(inputs))
	}
	err = exceptions.TryCatch[error](func() {
		for ii, input := range inputs {
			r.inputs[ii].SetValue(input)
		}
		predictions = make([]*mat.Dense, len(r.predictions))
		for ii, prediction := range r.predictions {
			prediction.Reset()
			prediction.Forward()
			predictions[ii] = mat.DenseCopyOf(prediction.Output())
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "Trainer.Predict")
	}
	return predictions, nil
}
