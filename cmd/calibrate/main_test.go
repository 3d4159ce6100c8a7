package main

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/distance.report/internal/config"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
	"github.com/banshee-data/distance.report/internal/testutil"
	"github.com/banshee-data/distance.report/internal/units"
)

func intPtr(v int) *int { return &v }

func fastTuning() *config.TuningConfig {
	return &config.TuningConfig{
		OptimizerIterations:    intPtr(3000),
		OptimizerDecayInterval: intPtr(300),
		MonteCarloSeeds:        intPtr(5),
		MonteCarloIterations:   intPtr(20),
	}
}

func testScene() *Scene {
	return &Scene{
		Name: "crossing",
		Lines: []homography.Line{
			{
				Label: "kerb", Defined: true,
				Start: geom.Point{X: 100, Y: 100}, End: geom.Point{X: 200, Y: 100},
				TrueLength: 10, AngleDeg: 0,
			},
			{
				Label: "lane", Defined: true,
				Start: geom.Point{X: 100, Y: 100}, End: geom.Point{X: 100, Y: 150},
				TrueLength: 5, AngleDeg: 90,
			},
		},
		Measurements: []Segment{
			{Label: "diagonal", A: geom.Point{X: 100, Y: 100}, B: geom.Point{X: 200, Y: 150}},
		},
	}
}

func TestLoadScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.json")
	data := `{
		"name": "crossing",
		"lens": {"k1": -0.07, "center_x": 960, "center_y": 540, "diagonal": 2203},
		"lines": [
			{"label": "kerb", "defined": true, "start": {"x": 0, "y": 0}, "end": {"x": 100, "y": 0}, "true_length": 10}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	scene, err := loadScene(path)
	testutil.AssertNoError(t, err)
	if scene.Name != "crossing" {
		t.Errorf("name = %q, want crossing", scene.Name)
	}
	if scene.Lens.K1 != -0.07 {
		t.Errorf("k1 = %v, want -0.07", scene.Lens.K1)
	}
	if len(scene.Lines) != 1 || scene.Lines[0].Label != "kerb" {
		t.Errorf("unexpected lines: %+v", scene.Lines)
	}
}

func TestLoadSceneErrors(t *testing.T) {
	_, err := loadScene(filepath.Join(t.TempDir(), "missing.json"))
	testutil.AssertError(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"lens": {"k1": 0.1}}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = loadScene(path)
	testutil.AssertError(t, err)
}

func TestRunScene(t *testing.T) {
	res, err := runScene(testScene(), fastTuning())
	if err != nil {
		t.Fatalf("runScene failed: %v", err)
	}

	if len(res.Fit.Lines) != 2 {
		t.Fatalf("expected 2 fitted lines, got %d", len(res.Fit.Lines))
	}
	if len(res.Measured) != 1 {
		t.Fatalf("expected 1 measurement, got %d", len(res.Measured))
	}

	// 100px by 50px at 0.1 m/px.
	want := math.Sqrt(125)
	got := res.Measured[0].Budget.Measured
	if math.Abs(got-want)/want > 0.03 {
		t.Errorf("diagonal = %v, want %v within 3%%", got, want)
	}
	if res.Measured[0].Budget.SigmaTotal <= 0 {
		t.Error("expected a positive total sigma")
	}
}

func TestRunSceneInsufficientLines(t *testing.T) {
	scene := testScene()
	scene.Lines = scene.Lines[:1]
	if _, err := runScene(scene, fastTuning()); err == nil {
		t.Error("expected an error with a single line")
	}
}

func TestPrintResult(t *testing.T) {
	res, err := runScene(testScene(), fastTuning())
	if err != nil {
		t.Fatalf("runScene failed: %v", err)
	}

	var buf bytes.Buffer
	printResult(&buf, res, units.Metres)
	out := buf.String()

	for _, want := range []string{"kerb", "lane", "diagonal", "rmse", "condition"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	res, err := runScene(testScene(), fastTuning())
	if err != nil {
		t.Fatalf("runScene failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := writeCSV(path, res.Measured, units.Feet); err != nil {
		t.Fatalf("writeCSV failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read CSV back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "label" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "diagonal" || rows[1][len(rows[1])-1] != units.Feet {
		t.Errorf("unexpected row: %v", rows[1])
	}
}

func TestWritePlotsAndReport(t *testing.T) {
	scene := testScene()
	res, err := runScene(scene, fastTuning())
	if err != nil {
		t.Fatalf("runScene failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "plots")
	if err := writePlots(dir, res); err != nil {
		t.Fatalf("writePlots failed: %v", err)
	}
	for _, name := range []string{"loss.png", "residuals.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing plot %s: %v", name, err)
		}
	}

	reportFile := filepath.Join(t.TempDir(), "report.html")
	if err := writeReport(reportFile, scene, res); err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}
	raw, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "Calibration residuals") {
		t.Error("report HTML missing the residual chart")
	}
}
