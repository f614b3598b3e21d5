// Package plots collects metric points during training, stores them as JSON lines and renders
// them as PNG line charts with gonum's plot package.
package plots

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/ml/train"
	"k8s.io/klog/v2"
)

// TrainingPlotFileName is the default file name used to store plot points collected during training.
const TrainingPlotFileName = "training_plot_points.json"

// Point is one measurement of a metric at a global step. It is the unit saved to and loaded from
// points files.
type Point struct {
	// MetricName, e.g. "Train: Moving Average Loss" or "Mean Loss on eval".
	MetricName string

	// Short name, used in tight spaces.
	Short string

	// MetricType, e.g. "loss". Each metric type is drawn in its own chart.
	MetricType string

	// Step is the optimizer's global step when the metric was measured.
	Step float64

	// Value of the metric.
	Value float64
}

// Plotter receives points as they are measured. It is implemented by [Plots].
type Plotter interface {
	// AddPoint records one metric value.
	AddPoint(point Point)

	// DynamicSampleDone is called once all metrics of a step were recorded. incomplete is
	// set if any of them was NaN or infinite, and hence skipped.
	DynamicSampleDone(incomplete bool)
}

// AddTrainAndEvalMetrics records the training metrics of the last step (as passed to OnStep hooks),
// and then evaluates each of evalDatasets, recording their metrics as well.
//
// The "Batch Loss" training metric is not recorded: it is too noisy to plot, and the trainer
// always tracks its moving average.
func AddTrainAndEvalMetrics(plotter Plotter, loop *train.Loop, trainMetrics []float64, evalDatasets []train.Dataset) error {
	step := float64(loop.Trainer.Optimizer().GlobalStep())
	var incomplete bool
	add := func(name, short, metricType string, value float64) {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			incomplete = true
			return
		}
		plotter.AddPoint(Point{MetricName: name, Short: short, MetricType: metricType, Step: step, Value: value})
	}

	for ii, desc := range loop.Trainer.TrainMetrics() {
		if ii >= len(trainMetrics) {
			break
		}
		if desc.Name() == "Batch Loss" {
			continue
		}
		add("Train: "+desc.Name(), "T/"+desc.ShortName(), desc.MetricType(), trainMetrics[ii])
	}

	for _, ds := range evalDatasets {
		evalMetrics, err := loop.Trainer.Eval(ds)
		if err != nil {
			return err
		}
		dsShort := ds.Name()[:min(3, len(ds.Name()))]
		for ii, desc := range loop.Trainer.EvalMetrics() {
			add(fmt.Sprintf("%s on %s", desc.Name(), ds.Name()),
				fmt.Sprintf("%s(%s)", desc.ShortName(), dsShort),
				desc.MetricType(), evalMetrics[ii])
		}
	}
	plotter.DynamicSampleDone(incomplete)
	return nil
}

// LoadPoints reads all points saved in filePath. See CreatePointsWriter.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open points file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	points, err := DecodePoints(f)
	return points, errors.WithMessagef(err, "points file %q", filePath)
}

// DecodePoints reads JSON encoded points until the end of r.
func DecodePoints(r io.Reader) ([]Point, error) {
	var points []Point
	dec := json.NewDecoder(r)
	for dec.More() {
		var point Point
		if err := dec.Decode(&point); err != nil {
			return nil, errors.Wrapf(err, "failed to decode point #%d", len(points))
		}
		points = append(points, point)
	}
	return points, nil
}

// CreatePointsWriter starts a goroutine appending the points sent to pointWriter to filePath, one
// JSON object per line.
//
// After pointWriter is closed, errReport receives the first error found (or nil). Points sent
// after an error are discarded.
func CreatePointsWriter(filePath string) (pointWriter chan<- Point, errReport <-chan error) {
	points := make(chan Point, 100)
	errs := make(chan error, 1)
	go func() {
		err := appendPoints(filePath, points)
		if err != nil {
			klog.Errorf("Failed to write plot points: %+v", err)
			for range points {
				// Discard the remaining points, so senders don't block.
			}
		}
		errs <- err
	}()
	return points, errs
}

// appendPoints writes points to filePath until the channel is closed or an error occurs.
func appendPoints(filePath string, points <-chan Point) (err error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return errors.Wrapf(err, "failed to open points file %q for append", filePath)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = errors.Wrapf(closeErr, "failed to close points file %q", filePath)
		}
	}()
	enc := json.NewEncoder(f)
	for point := range points {
		if err = enc.Encode(point); err != nil {
			return errors.Wrapf(err, "failed to write point %+v to %q", point, filePath)
		}
	}
	return nil
}

// Points indexes points by their Step.
type Points map[float64][]Point

// NewPoints indexes rawPoints by step. See LoadPoints to read them from a file.
func NewPoints(rawPoints []Point) Points {
	points := make(Points)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// steps returns the steps with points, in increasing order.
func (points Points) steps() []float64 {
	return slices.Sorted(maps.Keys(points))
}

// Map calls fn on every point, in step order. Changing p.Step doesn't re-index the point.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range points.steps() {
		for ii := range points[step] {
			fn(&points[step][ii])
		}
	}
}

// Filter removes the points for which keep returns false.
func (points Points) Filter(keep func(p Point) bool) {
	for step, stepPoints := range points {
		stepPoints = slices.DeleteFunc(stepPoints, func(p Point) bool { return !keep(p) })
		if len(stepPoints) == 0 {
			delete(points, step)
		} else {
			points[step] = stepPoints
		}
	}
}

// Extract returns all points, sorted by step.
func (points Points) Extract() []Point {
	var rawPoints []Point
	for _, step := range points.steps() {
		rawPoints = append(rawPoints, points[step]...)
	}
	return rawPoints
}

// MetricsNames returns the names of the metrics in the collection, sorted by metric type and then by name.
func (points Points) MetricsNames() []string {
	type typedName struct{ metricType, name string }
	seen := make(map[typedName]bool)
	points.Map(func(p *Point) { seen[typedName{p.MetricType, p.MetricName}] = true })
	keys := slices.SortedFunc(maps.Keys(seen), func(a, b typedName) int {
		return cmp.Or(cmp.Compare(a.metricType, b.metricType), cmp.Compare(a.name, b.name))
	})
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if !slices.Contains(names, key.name) {
			names = append(names, key.name)
		}
	}
	return names
}

// MetricsTypes returns the sorted metric types in the collection.
func (points Points) MetricsTypes() []string {
	types := make(map[string]bool)
	points.Map(func(p *Point) { types[p.MetricType] = true })
	return slices.Sorted(maps.Keys(types))
}

// TableForMetrics renders a table with one row per step, and one column per metric name.
// If no metrics are given, all of them are included.
func (points Points) TableForMetrics(metrics ...string) string {
	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := cellStyle.Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(append([]string{"Step"}, metrics...)...)

	for _, step := range points.steps() {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, p := range points[step] {
			if col := slices.Index(metrics, p.MetricName); col >= 0 {
				row[col+1] = fmt.Sprintf("%f", p.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

// String implements fmt.Stringer, with a table of all metrics.
func (points Points) String() string {
	return points.TableForMetrics()
}
