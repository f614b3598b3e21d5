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

package main

import (
	"fmt"
	"io"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/graph/nanlogger"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/data"
	"github.com/redtea-ml/redtea/ml/train"
	"github.com/redtea-ml/redtea/ml/train/commandline"
	"github.com/redtea-ml/redtea/ml/train/losses"
	"github.com/redtea-ml/redtea/ml/train/metrics"
	"github.com/redtea-ml/redtea/ml/train/optimizers"
	"github.com/redtea-ml/redtea/ui/plots"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// trainConfig holds the settings of trainModel that are not hyperparameters of the model.
type trainConfig struct {
	model      string
	plotPath   string
	plotPoints int
	progress   bool
	nanLogger  bool
	out        io.Writer
}

// trainModel trains the configured model on the given data, with the hyperparameters in ctx, and reports
// the evaluation, a sample of predictions and a summary of the training to config.out.
func trainModel(ctx *context.Context, config *trainConfig, inputs, labels *mat.Dense) error {
	numExamples, outputDim := labels.Dims()
	var nanLogger *nanlogger.NanLogger
	if config.nanLogger {
		nanLogger = nanlogger.New()
	}
	modelFn, err := newModelFn(config.model, outputDim, nanLogger)
	if err != nil {
		return err
	}
	batchSize := context.GetParamOr(ctx, ParamBatchSize, 0)
	if batchSize < 0 {
		return errors.Errorf("invalid %s=%d", ParamBatchSize, batchSize)
	}
	if batchSize == 0 || batchSize > numExamples {
		batchSize = numExamples
	}
	numSteps := context.GetParamOr(ctx, ParamTrainSteps, 1000)
	if numSteps <= 0 {
		return errors.Errorf("invalid %s=%d", ParamTrainSteps, numSteps)
	}

	trainDS := data.InMemory("train", inputs, labels).BatchSize(batchSize, true).Infinite(true)
	if batchSize < numExamples {
		trainDS.Shuffle().WithRand(ctx.Rand())
	}
	evalDS := data.InMemory("eval", inputs, labels).BatchSize(batchSize, true)

	var opt *optimizers.Optimizer
	err = catch(func() { opt = optimizers.FromContext(ctx) })
	if err != nil {
		return err
	}
	trainer := train.NewTrainer(ctx, modelFn, losses.LeastSquares, opt,
		[]metrics.Interface{metrics.NewMovingAverageMeanSquaredError("Moving Average MSE", "~mse", 0.01)},
		[]metrics.Interface{
			metrics.NewMeanAbsoluteError("Mean Absolute Error", "mae"),
			metrics.NewMedianAbsoluteError("Median Absolute Error", "medae"),
		})
	loop := train.NewLoop(trainer)
	nanLogger.AttachToLoop(loop)
	if config.progress {
		commandline.AttachProgressBarTo(loop, config.out)
	} else {
		train.NTimesDuringLoop(loop, 10, "report", 0, func(loop *train.Loop, values []float64) error {
			_, err := fmt.Fprintf(config.out, "step: %d, loss: %g\n", loop.LoopStep, values[0])
			return err
		})
	}
	if config.plotPath != "" {
		plots.New().WithPNG(config.plotPath).WithDatasets(evalDS).Attach(loop, config.plotPoints)
	}

	klog.V(1).Infof("training model %q with %s for %d steps, batch size %d", config.model, opt, numSteps, batchSize)
	if _, err = loop.RunSteps(trainDS, numSteps); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(config.out)
	if err = commandline.ReportEval(config.out, trainer, evalDS); err != nil {
		return err
	}
	if err = reportPredictions(config.out, trainer, evalDS); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(config.out, commandline.SprintTrainingSummary(ctx, loop))
	return nil
}

// reportPredictions prints the labels and predictions of the first batch of ds.
func reportPredictions(w io.Writer, trainer *train.Trainer, ds train.Dataset) error {
	ds.Reset()
	defer ds.Reset()
	_, inputs, labels, err := ds.Yield()
	if err != nil {
		return errors.WithMessagef(err, "reading first batch of %q", ds.Name())
	}
	predictions, err := trainer.Predict(inputs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Labels:\n%v\nPredictions:\n%v\n",
		mat.Formatted(labels[0], mat.Squeeze()), mat.Formatted(predictions[0], mat.Squeeze()))
	return err
}

// catch converts a panic raised by fn into an error.
func catch(fn func()) error {
	return exceptions.TryCatch[error](fn)
}
