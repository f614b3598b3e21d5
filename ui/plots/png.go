package plots

import (
	"io"
	"os"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/redtea-ml/redtea/ml/train"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"
)

// DefaultNumPoints is the default number of times metrics are collected during a training loop.
const DefaultNumPoints = 20

var (
	// PlotWidth is the width of each chart (one per metric type) in the generated image.
	PlotWidth = 8 * vg.Inch

	// PlotHeight is the height of each chart (one per metric type) in the generated image.
	PlotHeight = 4 * vg.Inch
)

// Plots collects points during training and renders them as a PNG image, with one chart
// per metric type, stacked vertically.
//
// Optionally, the collected points are also appended to a JSON file (see WithPointsFile), which can
// later be read with LoadPoints.
type Plots struct {
	mu           sync.Mutex
	points       []Point
	evalDatasets []train.Dataset

	pngPath      string
	pointsPath   string
	pointsWriter chan<- Point
	errReport    <-chan error
	incomplete   int
}

var _ Plotter = (*Plots)(nil)

// New creates an empty Plots collector.
func New() *Plots {
	return &Plots{}
}

// WithPNG sets the file where the charts are saved once the training loop ends.
func (p *Plots) WithPNG(filePath string) *Plots {
	p.pngPath = filePath
	return p
}

// WithPointsFile appends every collected point to the given file, one JSON object per line.
func (p *Plots) WithPointsFile(filePath string) *Plots {
	p.pointsPath = filePath
	return p
}

// WithDatasets sets datasets to evaluate every time points are collected.
func (p *Plots) WithDatasets(datasets ...train.Dataset) *Plots {
	p.evalDatasets = datasets
	return p
}

// AddPoint implements Plotter.
func (p *Plots) AddPoint(point Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, point)
	if p.pointsWriter == nil && p.pointsPath != "" {
		p.pointsWriter, p.errReport = CreatePointsWriter(p.pointsPath)
	}
	if p.pointsWriter != nil {
		p.pointsWriter <- point
	}
}

// DynamicSampleDone implements Plotter.
func (p *Plots) DynamicSampleDone(incomplete bool) {
	if incomplete {
		p.mu.Lock()
		p.incomplete++
		p.mu.Unlock()
		klog.V(1).Info("plots: some metrics were NaN or infinite and were not recorded")
	}
}

// Points returns a copy of the points collected so far.
func (p *Plots) Points() Points {
	p.mu.Lock()
	defer p.mu.Unlock()
	return NewPoints(slices.Clone(p.points))
}

// Attach the collector to the training loop: metrics are collected numPoints times during the loop
// (see train.NTimesDuringLoop), and when the loop ends, or is interrupted by an error, the points
// file is closed and the PNG image is written, if configured.
//
// If numPoints <= 0, DefaultNumPoints is used.
func (p *Plots) Attach(loop *train.Loop, numPoints int) {
	if numPoints <= 0 {
		numPoints = DefaultNumPoints
	}
	train.NTimesDuringLoop(loop, numPoints, "plots", 0, func(loop *train.Loop, metrics []float64) error {
		return AddTrainAndEvalMetrics(p, loop, metrics, p.evalDatasets)
	})
	loop.OnEnd("plots", 0, func(_ *train.Loop, _ []float64) error {
		return p.Done()
	})
	loop.OnAbort("plots", 0, func(_ *train.Loop, _ error) {
		if err := p.Done(); err != nil {
			klog.Errorf("Failed to close plots of interrupted run: %+v", err)
		}
	})
}

// Done closes the points file, if one is being written, and saves the PNG image, if configured.
func (p *Plots) Done() error {
	p.mu.Lock()
	writer, errReport := p.pointsWriter, p.errReport
	p.pointsWriter, p.errReport = nil, nil
	p.mu.Unlock()
	if writer != nil {
		close(writer)
		if err := <-errReport; err != nil {
			return err
		}
	}
	if p.pngPath == "" {
		return nil
	}
	if err := SavePNG(p.Points(), p.pngPath); err != nil {
		klog.Errorf("Failed to save plots: %+v", err)
		return err
	}
	klog.V(1).Infof("plots saved to %q", p.pngPath)
	return nil
}

// SavePNG renders the points into the given file. See WritePNG.
func SavePNG(points Points, filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", filePath)
	}
	err = WritePNG(points, f)
	if err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close plot file %q", filePath)
}

// WritePNG renders the points as one line chart per metric type, stacked vertically, and writes
// it to w as a PNG image. Each metric name becomes one line, with the global step in the x-axis.
func WritePNG(points Points, w io.Writer) error {
	metricTypes := points.MetricsTypes()
	if len(metricTypes) == 0 {
		return errors.New("no points to plot")
	}
	names := points.MetricsNames()
	rows := make([][]*plot.Plot, 0, len(metricTypes))
	for _, metricType := range metricTypes {
		p := plot.New()
		p.Title.Text = metricType
		p.X.Label.Text = "Step"
		p.Y.Label.Text = metricType
		p.Add(plotter.NewGrid())

		var lines []any
		for _, name := range names {
			var xys plotter.XYs
			points.Map(func(pt *Point) {
				if pt.MetricName == name && pt.MetricType == metricType {
					xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
				}
			})
			if len(xys) > 0 {
				lines = append(lines, name, xys)
			}
		}
		if err := plotutil.AddLinePoints(p, lines...); err != nil {
			return errors.Wrapf(err, "failed to plot metrics of type %q", metricType)
		}
		p.Legend.Top = true
		rows = append(rows, []*plot.Plot{p})
	}

	img := vgimg.New(PlotWidth, PlotHeight*vg.Length(len(rows)))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(rows),
		Cols:      1,
		PadY:      vg.Millimeter,
		PadTop:    vg.Millimeter,
		PadBottom: vg.Millimeter,
		PadLeft:   vg.Millimeter,
		PadRight:  vg.Millimeter,
	}
	canvases := plot.Align(rows, tiles, dc)
	for ii, row := range rows {
		row[0].Draw(canvases[ii][0])
	}
	pngCanvas := vgimg.PngCanvas{Canvas: img}
	if _, err := pngCanvas.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to encode plot as PNG")
	}
	return nil
}
