package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/distance.report/internal/homography"
)

// SaveLossPlot writes the optimizer loss history as a PNG. The history is
// sampled, so the x axis is in samples, not raw iterations.
func SaveLossPlot(history []float64, path string) error {
	if len(history) == 0 {
		return fmt.Errorf("loss history is empty")
	}

	pts := make(plotter.XYs, len(history))
	for i, v := range history {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	p := plot.New()
	p.Title.Text = "Optimizer loss"
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "total loss"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build loss line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save loss plot: %w", err)
	}
	return nil
}

// SaveResidualPlot writes per-line length errors as a PNG bar chart.
func SaveResidualPlot(lineErrs []homography.LineError, path string) error {
	if len(lineErrs) == 0 {
		return fmt.Errorf("no line errors to plot")
	}

	vals := make(plotter.Values, len(lineErrs))
	labels := make([]string, len(lineErrs))
	for i, le := range lineErrs {
		vals[i] = le.PercentError
		labels[i] = le.Label
	}

	p := plot.New()
	p.Title.Text = "Per-line residuals"
	p.Y.Label.Text = "length error (%)"

	bars, err := plotter.NewBarChart(vals, vg.Points(24))
	if err != nil {
		return fmt.Errorf("failed to build residual bars: %w", err)
	}
	bars.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	p.Add(bars)
	p.NominalX(labels...)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save residual plot: %w", err)
	}
	return nil
}
