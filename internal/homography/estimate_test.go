package homography

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/distance.report/internal/geom"
)

func TestEstimateRecoversKnownHomography(t *testing.T) {
	truth := geom.Homography{1.1, 0.2, 5, -0.1, 0.9, -3, 2e-4, 1e-4, 1}
	src := []geom.Point{{X: 0, Y: 0}, {X: 200, Y: 0}, {X: 200, Y: 150}, {X: 0, Y: 150}}
	dst := make([]geom.Point, len(src))
	for i, p := range src {
		dst[i] = truth.Apply(p)
	}

	h, err := Estimate(src, dst)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	for i, p := range src {
		got := h.Apply(p)
		if math.Abs(got.X-dst[i].X) > 1e-6 || math.Abs(got.Y-dst[i].Y) > 1e-6 {
			t.Errorf("point %d reprojects to %v, want %v", i, got, dst[i])
		}
	}
	if math.Abs(h[8]-1) > 1e-12 {
		t.Errorf("h22 = %v, want 1", h[8])
	}
}

func TestEstimateOverdetermined(t *testing.T) {
	// Six consistent correspondences: least squares recovers the exact map.
	truth := geom.Homography{0.05, 0.001, -2, -0.002, 0.048, 7, 1e-5, -2e-5, 1}
	src := []geom.Point{{X: 10, Y: 10}, {X: 500, Y: 20}, {X: 480, Y: 400}, {X: 15, Y: 380}, {X: 250, Y: 200}, {X: 100, Y: 350}}
	dst := make([]geom.Point, len(src))
	for i, p := range src {
		dst[i] = truth.Apply(p)
	}

	h, err := Estimate(src, dst)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	for i, p := range src {
		got := h.Apply(p)
		if math.Abs(got.X-dst[i].X) > 1e-6 || math.Abs(got.Y-dst[i].Y) > 1e-6 {
			t.Errorf("point %d reprojects to %v, want %v", i, got, dst[i])
		}
	}
}

func TestEstimateInsufficientPoints(t *testing.T) {
	src := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	dst := []geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 2}}
	if _, err := Estimate(src, dst); !errors.Is(err, ErrInsufficientPoints) {
		t.Errorf("err = %v, want ErrInsufficientPoints", err)
	}
}

func TestEstimateMismatchedPoints(t *testing.T) {
	src := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	dst := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	if _, err := Estimate(src, dst); !errors.Is(err, ErrMismatchedPoints) {
		t.Errorf("err = %v, want ErrMismatchedPoints", err)
	}
}

func TestEstimateDegenerateGeometry(t *testing.T) {
	// All four source points coincident: the DLT system has exactly zero
	// pivots and no homography exists.
	src := []geom.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	dst := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	if _, err := Estimate(src, dst); !errors.Is(err, ErrSingular) {
		t.Errorf("err = %v, want ErrSingular", err)
	}
}
