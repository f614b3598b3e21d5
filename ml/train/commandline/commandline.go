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

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/redtea-ml/redtea/ml/context"
	"github.com/redtea-ml/redtea/ml/train"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	tableStyle = lipgloss.NewStyle().PaddingLeft(4)
)

func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
}

// ReportEval reports the results of evaluating the datasets using trainer.Eval, one table per dataset.
func ReportEval(w io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		metricsValues, err := trainer.Eval(ds)
		if err != nil {
			return err
		}
		table := newTable()
		for metricIdx, metric := range trainer.EvalMetrics() {
			value := metricsValues[metricIdx]
			table.Row(fmt.Sprintf("%s (%s)", metric.Name(), metric.ShortName()), metric.PrettyPrint(value))
		}
		_, _ = fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render(fmt.Sprintf("Results on %s:", ds.Name())), tableStyle.Render(table.String()))
		ds.Reset()
	}
	return nil
}

// SprintTrainingSummary returns a table with the size of the model in ctx and the speed of the last run of the loop.
func SprintTrainingSummary(ctx *context.Context, loop *train.Loop) string {
	table := newTable()
	table.Row("Variables", humanize.Comma(int64(ctx.NumVariables())))
	table.Row("Parameters", humanize.Comma(int64(ctx.NumParameters())))
	table.Row("Memory", humanize.Bytes(uint64(ctx.Memory())))
	steps := loop.LoopStep - loop.StartStep
	table.Row("Steps", humanize.Comma(int64(steps)))
	table.Row("Optimizer", loop.Trainer.Optimizer().String())
	median := loop.MedianTrainStepDuration()
	table.Row("Median step", FormatDuration(median))
	if median > 0 {
		table.Row("Steps/s", humanize.CommafWithDigits(float64(time.Second)/float64(median), 1))
	}
	return fmt.Sprintf("%s\n%s", titleStyle.Render("Training summary:"), tableStyle.Render(table.String()))
}
