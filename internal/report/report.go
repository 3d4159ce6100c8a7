// Package report renders calibration results: an HTML report built from
// go-echarts charts for interactive review, and PNG plots for archival
// alongside exported measurement data.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/db"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
)

// SessionData is everything the report needs about one session.
type SessionData struct {
	Session      *db.Session
	Homography   *db.StoredHomography
	Lines        []homography.Line
	Validation   []bias.ValidationEntry
	Measurements []db.Measurement
}

// LineErrors recomputes per-line residuals against the stored matrix. The
// calibration endpoint reports these at fit time; recomputing here keeps the
// report usable for matrices loaded from storage.
func (d *SessionData) LineErrors() []homography.LineError {
	sess := d.Session
	h := d.Homography.Matrix
	var out []homography.LineError
	for _, l := range d.Lines {
		if !l.Active() {
			continue
		}
		ua := geom.Undistort(l.Start, sess.LensK1, sess.Center(), sess.Diagonal)
		ub := geom.Undistort(l.End, sess.LensK1, sess.Center(), sess.Diagonal)
		est := h.Apply(ua).Dist(h.Apply(ub))
		le := homography.LineError{
			Label:           l.Label,
			TrueLength:      l.TrueLength,
			EstimatedLength: est,
			Error:           est - l.TrueLength,
		}
		if l.TrueLength > 0 {
			le.PercentError = 100 * (est - l.TrueLength) / l.TrueLength
		}
		out = append(out, le)
	}
	return out
}

// WriteHTML renders the full session report as a standalone HTML page.
func WriteHTML(w io.Writer, d *SessionData) error {
	page := components.NewPage()
	page.AddCharts(residualChart(d), validationChart(d))
	if len(d.Measurements) > 0 {
		page.AddCharts(measurementChart(d))
	}
	return page.Render(w)
}

func residualChart(d *SessionData) *charts.Bar {
	lineErrs := d.LineErrors()
	labels := make([]string, 0, len(lineErrs))
	vals := make([]opts.BarData, 0, len(lineErrs))
	for _, le := range lineErrs {
		labels = append(labels, le.Label)
		vals = append(vals, opts.BarData{Value: le.PercentError})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Calibration residuals",
			Subtitle: fmt.Sprintf("session=%s rmse=%.4fm mape=%.2f%% cond=%.1f",
				d.Session.Name, d.Homography.RMSE, d.Homography.MAPE, d.Homography.ConditionNumber),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "length error (%)"}),
	)
	bar.SetXAxis(labels).
		AddSeries("percent error", vals,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func validationChart(d *SessionData) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(d.Validation))
	for _, e := range d.Validation {
		if e.MeasuredDistance <= 0 {
			continue
		}
		pts = append(pts, opts.ScatterData{
			Value: []interface{}{e.TrueDistance, e.MeasuredDistance, e.TrueDistance / e.MeasuredDistance},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Validation entries",
			Subtitle: fmt.Sprintf("%d entries; points off the diagonal indicate local bias", len(pts)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "true (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "measured (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("validation", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}

func measurementChart(d *SessionData) *charts.Bar {
	labels := make([]string, 0, len(d.Measurements))
	corrected := make([]opts.BarData, 0, len(d.Measurements))
	ci95 := make([]opts.BarData, 0, len(d.Measurements))
	for i, m := range d.Measurements {
		label := m.Label
		if label == "" {
			label = fmt.Sprintf("segment %d", i+1)
		}
		labels = append(labels, label)
		corrected = append(corrected, opts.BarData{Value: m.Budget.Corrected})
		ci95 = append(ci95, opts.BarData{Value: m.Budget.CI95})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Measurements", Subtitle: "corrected distance with 95% half-width"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "metres"}),
	)
	bar.SetXAxis(labels).
		AddSeries("corrected", corrected).
		AddSeries("ci95 half-width", ci95)
	return bar
}
