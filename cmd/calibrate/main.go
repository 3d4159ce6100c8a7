// Command calibrate runs the measurement pipeline on a scene file without a
// server: it fits the homography, measures the requested segments, and
// optionally writes CSV, PNG plots, and an HTML report.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/config"
	"github.com/banshee-data/distance.report/internal/db"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
	"github.com/banshee-data/distance.report/internal/montecarlo"
	"github.com/banshee-data/distance.report/internal/report"
	"github.com/banshee-data/distance.report/internal/uncertainty"
	"github.com/banshee-data/distance.report/internal/units"
)

var (
	scenePath  = flag.String("scene", "", "Path to the scene JSON file (required)")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	outUnits   = flag.String("units", units.Metres, "Output units: m, ft, yd")
	csvPath    = flag.String("csv", "", "Write measurements to this CSV file")
	plotsDir   = flag.String("plots", "", "Write loss and residual PNG plots to this directory")
	reportPath = flag.String("report", "", "Write an HTML report to this file")
)

// Lens is the undistortion model of the scene's camera.
type Lens struct {
	K1       float64 `json:"k1"`
	CenterX  float64 `json:"center_x"`
	CenterY  float64 `json:"center_y"`
	Diagonal float64 `json:"diagonal"`
}

// Segment is one pixel segment to measure.
type Segment struct {
	Label string     `json:"label"`
	A     geom.Point `json:"a"`
	B     geom.Point `json:"b"`
}

// Scene is the on-disk input: lens model, reference lines, optional
// validation history, and the segments to measure.
type Scene struct {
	Name         string                 `json:"name"`
	Lens         Lens                   `json:"lens"`
	Lines        []homography.Line      `json:"lines"`
	Validation   []bias.ValidationEntry `json:"validation,omitempty"`
	Measurements []Segment              `json:"measurements,omitempty"`
}

// MeasuredSegment pairs a requested segment with its uncertainty budget.
type MeasuredSegment struct {
	Segment
	Budget uncertainty.Budget `json:"budget"`
}

// SceneResult is everything one run produces.
type SceneResult struct {
	Fit      *homography.Result
	Measured []MeasuredSegment
}

func loadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	var scene Scene
	if err := json.Unmarshal(raw, &scene); err != nil {
		return nil, fmt.Errorf("failed to parse scene file: %w", err)
	}
	if scene.Lens.K1 != 0 && scene.Lens.Diagonal <= 0 {
		return nil, fmt.Errorf("scene lens has k1 but no diagonal")
	}
	return &scene, nil
}

func runScene(scene *Scene, tuning *config.TuningConfig) (*SceneResult, error) {
	opts := homography.OptionsFromTuning(tuning)
	opts.K1 = scene.Lens.K1
	opts.Center = geom.Point{X: scene.Lens.CenterX, Y: scene.Lens.CenterY}
	opts.Diagonal = scene.Lens.Diagonal

	fit, err := homography.OptimizeFromLines(scene.Lines, opts)
	if err != nil {
		return nil, err
	}

	mcOpts := montecarlo.OptionsFromTuning(tuning)
	biasOpts := bias.OptionsFromTuning(tuning)

	res := &SceneResult{Fit: fit}
	for _, seg := range scene.Measurements {
		ua := geom.Undistort(seg.A, opts.K1, opts.Center, opts.Diagonal)
		ub := geom.Undistort(seg.B, opts.K1, opts.Center, opts.Diagonal)
		measured := fit.Matrix.Apply(ua).Dist(fit.Matrix.Apply(ub))

		mc := montecarlo.Estimate(seg.A, seg.B, fit.Matrix, opts.K1, opts.Center, opts.Diagonal, mcOpts)
		mid := geom.Point{X: (seg.A.X + seg.B.X) / 2, Y: (seg.A.Y + seg.B.Y) / 2}
		pred := bias.Predict(mid, scene.Validation, biasOpts)

		res.Measured = append(res.Measured, MeasuredSegment{
			Segment: seg,
			Budget:  uncertainty.Combine(measured, mc, pred),
		})
	}
	return res, nil
}

func printResult(w io.Writer, res *SceneResult, target string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "line\ttrue\testimated\terror %%\n")
	for _, le := range res.Fit.Lines {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%+.2f\n", le.Label, le.TrueLength, le.EstimatedLength, le.PercentError)
	}
	fmt.Fprintf(tw, "\nrmse\t%.4f\tmape\t%.2f%%\n", res.Fit.RMSE, res.Fit.MAPE)
	fmt.Fprintf(tw, "condition\t%.1f\t\t\n", res.Fit.ConditionNumber)

	if len(res.Measured) > 0 {
		fmt.Fprintf(tw, "\nsegment\tcorrected (%s)\tci95\tsigma\n", target)
		for _, m := range res.Measured {
			fmt.Fprintf(tw, "%s\t%.3f\t±%.3f\t%.3f\n",
				m.Label,
				units.ConvertDistance(m.Budget.Corrected, target),
				units.ConvertDistance(m.Budget.CI95, target),
				units.ConvertDistance(m.Budget.SigmaTotal, target),
			)
		}
	}
	tw.Flush()
}

func writeCSV(path string, measured []MeasuredSegment, target string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"label", "ax", "ay", "bx", "by", "measured", "corrected", "sigma_total", "ci90", "ci95", "ci99", "units"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, m := range measured {
		b := m.Budget
		row := []string{
			m.Label,
			formatFloat(m.A.X), formatFloat(m.A.Y),
			formatFloat(m.B.X), formatFloat(m.B.Y),
			formatFloat(units.ConvertDistance(b.Measured, target)),
			formatFloat(units.ConvertDistance(b.Corrected, target)),
			formatFloat(units.ConvertDistance(b.SigmaTotal, target)),
			formatFloat(units.ConvertDistance(b.CI90, target)),
			formatFloat(units.ConvertDistance(b.CI95, target)),
			formatFloat(units.ConvertDistance(b.CI99, target)),
			target,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writePlots(dir string, res *SceneResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create plots dir: %w", err)
	}
	if err := report.SaveLossPlot(res.Fit.LossHistory, filepath.Join(dir, "loss.png")); err != nil {
		return err
	}
	return report.SaveResidualPlot(res.Fit.Lines, filepath.Join(dir, "residuals.png"))
}

func writeReport(path string, scene *Scene, res *SceneResult) error {
	data := &report.SessionData{
		Session: &db.Session{
			Name:     scene.Name,
			LensK1:   scene.Lens.K1,
			CenterX:  scene.Lens.CenterX,
			CenterY:  scene.Lens.CenterY,
			Diagonal: scene.Lens.Diagonal,
		},
		Homography: &db.StoredHomography{
			Matrix:          res.Fit.Matrix,
			ConditionNumber: res.Fit.ConditionNumber,
			RMSE:            res.Fit.RMSE,
			MAPE:            res.Fit.MAPE,
		},
		Lines:      scene.Lines,
		Validation: scene.Validation,
	}
	for _, m := range res.Measured {
		data.Measurements = append(data.Measurements, db.Measurement{
			Label:  m.Label,
			A:      m.A,
			B:      m.B,
			Budget: m.Budget,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	return report.WriteHTML(f, data)
}

func main() {
	flag.Parse()

	if *scenePath == "" {
		log.Fatal("-scene is required")
	}
	if !units.IsValid(*outUnits) {
		log.Fatalf("invalid units %q; valid units are: %s", *outUnits, units.GetValidUnitsString())
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	scene, err := loadScene(*scenePath)
	if err != nil {
		log.Fatal(err)
	}

	res, err := runScene(scene, tuning)
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}

	printResult(os.Stdout, res, *outUnits)

	if *csvPath != "" {
		if err := writeCSV(*csvPath, res.Measured, *outUnits); err != nil {
			log.Fatalf("failed to write CSV: %v", err)
		}
		log.Printf("wrote %s", *csvPath)
	}
	if *plotsDir != "" {
		if err := writePlots(*plotsDir, res); err != nil {
			log.Fatalf("failed to write plots: %v", err)
		}
		log.Printf("wrote plots to %s", *plotsDir)
	}
	if *reportPath != "" {
		if err := writeReport(*reportPath, scene, res); err != nil {
			log.Fatalf("failed to write report: %v", err)
		}
		log.Printf("wrote %s", *reportPath)
	}
}
