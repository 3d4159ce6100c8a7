package montecarlo

import (
	"math"
	"testing"

	"github.com/banshee-data/distance.report/internal/geom"
)

func TestLCGSequence(t *testing.T) {
	// First values of the seed-0 stream, computed from the recurrence
	// state = state*1664525 + 1013904223 (mod 2^32).
	g := lcg{state: 0}
	want := []uint32{1013904223, 1196435762, 3519870697}
	for i, w := range want {
		g.next()
		if g.state != w {
			t.Fatalf("state after %d steps = %d, want %d", i+1, g.state, w)
		}
	}
}

func TestNoiseBounded(t *testing.T) {
	g := lcg{state: 7}
	const sigma = 2.0
	for i := 0; i < 10000; i++ {
		n := g.noise(sigma)
		if n < -sigma || n > sigma {
			t.Fatalf("noise draw %v outside [-%v, %v]", n, sigma, sigma)
		}
	}
}

func TestEstimateDeterminism(t *testing.T) {
	h := geom.Homography{0.05, 0, 0, 0, 0.05, 0, 0, 0, 1}
	a := geom.Point{X: 10, Y: 20}
	b := geom.Point{X: 200, Y: 180}
	center := geom.Point{X: 960, Y: 540}

	opts := DefaultOptions()
	r1 := Estimate(a, b, h, 0.05, center, 2202.9, opts)
	r2 := Estimate(a, b, h, 0.05, center, 2202.9, opts)
	if r1 != r2 {
		t.Errorf("identical inputs gave different results: %+v vs %+v", r1, r2)
	}
	if r1.StdDev <= 0 {
		t.Errorf("expected positive spread under 2px noise, got %v", r1.StdDev)
	}
}

func TestEstimateZeroOptionsFallsBack(t *testing.T) {
	// A zero-value Options has no seeds or iterations to average over;
	// Estimate substitutes the defaults instead of returning NaN.
	h := geom.Homography{0.05, 0, 0, 0, 0.05, 0, 0, 0, 1}
	a := geom.Point{X: 0, Y: 0}
	b := geom.Point{X: 100, Y: 0}

	r := Estimate(a, b, h, 0, geom.Point{}, 1, Options{})
	if math.IsNaN(r.Mean) || math.IsNaN(r.StdDev) {
		t.Fatalf("zero-value options produced NaN: %+v", r)
	}
	want := Estimate(a, b, h, 0, geom.Point{}, 1, DefaultOptions())
	if r != want {
		t.Errorf("fallback result = %+v, want defaults result %+v", r, want)
	}
}

func TestEstimateZeroSigma(t *testing.T) {
	// With no noise every draw is the exact projected distance.
	h := geom.Homography{0.05, 0, 0, 0, 0.05, 0, 0, 0, 1}
	a := geom.Point{X: 0, Y: 0}
	b := geom.Point{X: 100, Y: 0}

	opts := DefaultOptions()
	opts.SigmaPx = 0
	r := Estimate(a, b, h, 0, geom.Point{}, 1, opts)
	if math.Abs(r.Mean-5.0) > 1e-12 {
		t.Errorf("mean = %v, want 5.0", r.Mean)
	}
	if r.StdDev != 0 {
		t.Errorf("std dev = %v, want 0", r.StdDev)
	}
}

func TestEstimateSingleIterationGuard(t *testing.T) {
	h := geom.Identity()
	opts := Options{Seeds: 30, Iterations: 1, SigmaPx: 2.0}
	r := Estimate(geom.Point{}, geom.Point{X: 10}, h, 0, geom.Point{}, 1, opts)
	if math.IsNaN(r.StdDev) || r.StdDev != 0 {
		t.Errorf("n=1 std dev = %v, want 0", r.StdDev)
	}
	if math.IsNaN(r.Mean) {
		t.Error("n=1 mean is NaN")
	}
}

func TestMeanLengthMatchesEstimate(t *testing.T) {
	h := geom.Homography{0.1, 0, 0, 0, 0.1, 0, 0, 0, 1}
	a := geom.Point{X: 5, Y: 5}
	b := geom.Point{X: 105, Y: 5}
	opts := DefaultOptions()
	want := Estimate(a, b, h, 0, geom.Point{}, 1, opts).Mean
	got := MeanLength(a, b, h, 0, geom.Point{}, 1, opts)
	if got != want {
		t.Errorf("MeanLength = %v, Estimate.Mean = %v", got, want)
	}
}
