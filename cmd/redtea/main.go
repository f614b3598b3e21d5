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

// redtea trains one of a few small models on a CSV dataset (or on a small built-in sample),
// using the redtea automatic differentiation engine, and reports the final evaluation.
//
// Examples:
//
//	redtea -model=linear -set="optimizer=sgd;learning_rate=0.001;train_steps=1000"
//	redtea -model=lstm -data=./test/lstm.csv -set="optimizer=adam;hidden_size=10" -plot=lstm.png
//
// Hyperparameters are set with -set, see -help for the list of available ones.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/layers"
	"github.com/redtea-ml/redtea/ml/layers/activations"
	"github.com/redtea-ml/redtea/ml/train/commandline"
	"github.com/redtea-ml/redtea/ml/train/optimizers"
	"k8s.io/klog/v2"
)

var (
	flagModel      = flag.String("model", "linear", "Model to train: \"linear\", \"dense\", \"lstm\" or \"lstm_rows\".")
	flagData       = flag.String("data", "", "CSV file or http(s) URL with the training data. All columns but the last are the inputs, the last one is the label. If empty, a small built-in sample is used.")
	flagDataDir    = flag.String("data_dir", "~/.cache/redtea", "Directory where downloaded data files are stored.")
	flagDataHash   = flag.String("data_sha256", "", "If set, the sha256 checksum a downloaded data file must match. Files failing the check are removed.")
	flagPlot       = flag.String("plot", "", "If set, file where to save a PNG image with the plot of the training metrics.")
	flagPlotPoints = flag.Int("plot_points", 20, "Number of points collected for the -plot image.")
	flagProgress   = flag.Bool("progress", true, "Display a progress bar during training.")
	flagNanLogger  = flag.Bool("nanlogger", false, "Trace the outputs of the model layers, and stop at the first NaN or infinity, reporting where it happened.")
)

const (
	// ParamBatchSize is the number of examples per training step. If 0, all examples are used at each step.
	ParamBatchSize = "batch_size"

	// ParamTrainSteps is the number of training steps.
	ParamTrainSteps = "train_steps"
)

// createDefaultContext returns a context with the default hyperparameters for all models.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		optimizers.ParamOptimizer:       "sgd",
		optimizers.ParamLearningRate:    1e-3,
		optimizers.ParamClipStepByValue: 0.0,
		layers.ParamHiddenSize:          10,
		activations.ParamActivation:     "none",
		ParamBatchSize:                  0,
		ParamTrainSteps:                 1000,
		context.ParamInitialSeed:        int64(0),
	})
	return ctx
}

func main() {
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	klog.V(1).Infof("parameters set: %v", paramsSet)
	fmt.Println(commandline.SprintContextSettings(ctx))

	err := exceptions.TryCatch[error](func() {
		inputs, labels := must.M2(loadData(*flagData, *flagDataDir, *flagDataHash))
		config := &trainConfig{
			model:      *flagModel,
			plotPath:   *flagPlot,
			plotPoints: *flagPlotPoints,
			progress:   *flagProgress,
			nanLogger:  *flagNanLogger,
			out:        os.Stdout,
		}
		must.M(trainModel(ctx, config, inputs, labels))
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
