package geom

import (
	"math"
	"testing"
)

func TestUndistortIdentityWhenK1Zero(t *testing.T) {
	pts := []Point{
		{X: 0, Y: 0},
		{X: 123.4, Y: -56.7},
		{X: 1920, Y: 1080},
		{X: -4.2, Y: 9000},
	}
	center := Point{X: 960, Y: 540}
	for _, p := range pts {
		got := Undistort(p, 0, center, 2202.9)
		if got != p {
			t.Errorf("Undistort(%v, k1=0) = %v, want identity", p, got)
		}
	}
}

func TestUndistortPullsTowardCenter(t *testing.T) {
	center := Point{X: 500, Y: 500}
	p := Point{X: 900, Y: 500}
	got := Undistort(p, 0.3, center, 1414.2)
	if got.X >= p.X {
		t.Errorf("positive k1 should pull point toward center: got X=%v, start X=%v", got.X, p.X)
	}
	if got.Y != p.Y {
		t.Errorf("point on the horizontal axis must stay on it, got Y=%v", got.Y)
	}
}

func TestApplyDegenerateDenominator(t *testing.T) {
	// Bottom row chosen so w == 0 at (1, 1).
	h := Homography{1, 0, 0, 0, 1, 0, 1, 1, -2}
	got := h.Apply(Point{X: 1, Y: 1})
	if got != (Point{}) {
		t.Errorf("degenerate projection = %v, want origin sentinel", got)
	}
}

func TestHomographyRoundTrip(t *testing.T) {
	h := Homography{1.2, 0.1, 30, -0.2, 0.9, -14, 1e-4, 2e-4, 1}
	inv, ok := h.Invert()
	if !ok {
		t.Fatal("matrix should be invertible")
	}
	pts := []Point{{0, 0}, {100, 0}, {0, 100}, {640, 480}, {-35.5, 12.25}}
	for _, p := range pts {
		q := inv.Apply(h.Apply(p))
		if math.Abs(q.X-p.X) > 1e-8 || math.Abs(q.Y-p.Y) > 1e-8 {
			t.Errorf("round trip of %v = %v", p, q)
		}
	}
}

func TestInvertSingular(t *testing.T) {
	h := Homography{1, 2, 3, 2, 4, 6, 0, 0, 0}
	if _, ok := h.Invert(); ok {
		t.Error("rank-deficient matrix reported as invertible")
	}
}

func TestComposeMatchesSequentialApply(t *testing.T) {
	a := Homography{2, 0, 5, 0, 2, -3, 0, 0, 1}
	b := Homography{0, -1, 0, 1, 0, 0, 0, 0, 1} // 90 degree rotation
	ab := Compose(a, b)
	pts := []Point{{1, 0}, {3, 4}, {-7, 2}}
	for _, p := range pts {
		want := a.Apply(b.Apply(p))
		got := ab.Apply(p)
		if math.Abs(got.X-want.X) > 1e-12 || math.Abs(got.Y-want.Y) > 1e-12 {
			t.Errorf("Compose(a,b).Apply(%v) = %v, want %v", p, got, want)
		}
	}
}

func TestNormalizePoints(t *testing.T) {
	pts := []Point{{10, 10}, {110, 10}, {10, 110}, {110, 110}}
	norm, tf := NormalizePoints(pts)

	// Centroid at origin.
	var cx, cy float64
	for _, p := range norm {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(norm))
	cy /= float64(len(norm))
	if math.Abs(cx) > 1e-10 || math.Abs(cy) > 1e-10 {
		t.Errorf("normalized centroid = (%v, %v), want origin", cx, cy)
	}

	// Mean distance to centroid is sqrt(2).
	var mean float64
	for _, p := range norm {
		mean += math.Hypot(p.X, p.Y)
	}
	mean /= float64(len(norm))
	if math.Abs(mean-math.Sqrt2) > 1e-10 {
		t.Errorf("mean distance = %v, want sqrt(2)", mean)
	}

	// The returned transform reproduces the normalized points.
	for i, p := range pts {
		q := tf.Apply(p)
		if math.Abs(q.X-norm[i].X) > 1e-10 || math.Abs(q.Y-norm[i].Y) > 1e-10 {
			t.Errorf("transform mismatch at %d: %v vs %v", i, q, norm[i])
		}
	}
}

func TestNormalizePointsDegenerate(t *testing.T) {
	pts := []Point{{5, 5}, {5, 5}, {5, 5}}
	_, tf := NormalizePoints(pts)
	if tf[0] != 1 || tf[4] != 1 {
		t.Errorf("coincident points should fall back to unit scale, got %v", tf)
	}
}

func TestNormalizeH22(t *testing.T) {
	h := Homography{2, 0, 0, 0, 2, 0, 0, 0, 2}
	n := h.Normalize()
	if n[8] != 1 || n[0] != 1 {
		t.Errorf("Normalize() = %v", n)
	}
}
