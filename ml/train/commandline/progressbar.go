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

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/redtea-ml/redtea/ml/train"
	"github.com/schollz/progressbar/v3"
)

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "redtea.ml.train.commandline.progressBar"

// minRedrawInterval limits how often the bar and the metrics table are redrawn.
const minRedrawInterval = 200 * time.Millisecond

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	statsStyle        = lipgloss.NewStyle().PaddingLeft(8)
)

// progressBar draws a progress bar followed by a table with the latest training metrics.
//
// The training loop only records a snapshot of the progress; a separate goroutine redraws the
// terminal, at most once every minRedrawInterval, with the latest snapshot.
type progressBar struct {
	out      io.Writer
	term     *termenv.Output
	bar      *progressbar.ProgressBar
	lastStep int

	mu      sync.Mutex
	pending progressSnapshot

	redraw     chan struct{}
	rendered   chan struct{}
	linesDrawn int
}

// progressSnapshot holds the steps not drawn yet and the rows of the metrics table.
type progressSnapshot struct {
	steps int
	rows  [][]string
}

func (pBar *progressBar) onStart(loop *train.Loop, _ train.Dataset) error {
	pBar.lastStep = loop.LoopStep
	numSteps := -1 // Unknown, the bar works as a spinner.
	description := "Training: "
	if loop.EndStep >= 0 {
		numSteps = loop.EndStep - loop.StartStep
		description = fmt.Sprintf("Training (%s steps): ", humanize.Comma(int64(numSteps)))
	}
	pBar.bar = progressbar.NewOptions(numSteps,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		progressbar.OptionSetWriter(pBar.out),
	)
	pBar.pending = progressSnapshot{}
	pBar.linesDrawn = 0
	pBar.redraw = make(chan struct{}, 1)
	pBar.rendered = make(chan struct{})
	go pBar.render(pBar.redraw, pBar.rendered)
	return nil
}

// onStep records a snapshot of the progress and wakes up the renderer.
func (pBar *progressBar) onStep(loop *train.Loop, metrics []float64) error {
	steps := loop.LoopStep + 1 - pBar.lastStep
	if steps <= 0 || pBar.redraw == nil {
		return nil
	}
	pBar.lastStep = loop.LoopStep + 1

	stepCell := humanize.Comma(int64(loop.LoopStep + 1))
	if loop.EndStep >= 0 {
		stepCell = fmt.Sprintf("%s / %s", stepCell, humanize.Comma(int64(loop.EndStep)))
	}
	rows := [][]string{{"Step", stepCell}}
	for ii, metric := range loop.Trainer.TrainMetrics() {
		rows = append(rows, []string{metric.Name(), metric.PrettyPrint(metrics[ii])})
	}

	pBar.mu.Lock()
	pBar.pending.steps += steps
	pBar.pending.rows = rows
	pBar.mu.Unlock()
	select {
	case pBar.redraw <- struct{}{}:
	default:
		// A redraw is already scheduled, and it will pick the latest snapshot.
	}
	return nil
}

// render redraws on every signal of redraw, until it is closed. It then draws whatever is left
// and closes rendered.
func (pBar *progressBar) render(redraw <-chan struct{}, rendered chan<- struct{}) {
	defer close(rendered)
	for range redraw {
		pBar.draw()
		time.Sleep(minRedrawInterval)
	}
	pBar.draw()
}

// draw the pending snapshot, replacing the previous drawing.
func (pBar *progressBar) draw() {
	pBar.mu.Lock()
	snapshot := pBar.pending
	pBar.pending.steps = 0
	pBar.mu.Unlock()
	if snapshot.steps == 0 {
		return
	}

	if pBar.linesDrawn > 0 {
		pBar.term.ClearLines(pBar.linesDrawn)
	}
	_ = pBar.bar.Add(snapshot.steps)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		}).
		Rows(snapshot.rows...)
	_, _ = fmt.Fprintf(pBar.out, "\n%s\n", statsStyle.Render(table.String()))
	// The bar line plus the table rows and its top and bottom borders.
	pBar.linesDrawn = 1 + len(snapshot.rows) + 2
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	pBar.stop()
	return nil
}

// onAbort stops the renderer of an interrupted run, leaving the last drawing on screen.
func (pBar *progressBar) onAbort(_ *train.Loop, _ error) {
	pBar.stop()
}

// stop the renderer, if running, and wait for its final drawing.
func (pBar *progressBar) stop() {
	if pBar.redraw == nil {
		return
	}
	close(pBar.redraw)
	<-pBar.rendered
	pBar.redraw = nil
	_, _ = fmt.Fprintln(pBar.out)
}

// AttachProgressBar attaches to the loop a progress bar, followed by a table with the training metrics,
// written to os.Stdout. It is redrawn on every run of the loop.
func AttachProgressBar(loop *train.Loop) {
	AttachProgressBarTo(loop, os.Stdout)
}

// AttachProgressBarTo is like AttachProgressBar, but writes to out.
func AttachProgressBarTo(loop *train.Loop, out io.Writer) {
	pBar := &progressBar{out: out, term: termenv.NewOutput(out)}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Snapshots are taken at most 1000 times during the loop, plus every 3 seconds for slow loops.
	train.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onStep)
	train.PeriodicCallback(loop, 3*time.Second, false, ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
	loop.OnAbort(ProgressBarName, 0, pBar.onAbort)
}
