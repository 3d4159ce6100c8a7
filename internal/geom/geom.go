// Package geom provides the pixel-space geometry primitives shared by the
// calibration pipeline: radial lens undistortion, projective (homography)
// transforms, and Hartley point normalization.
//
// All coordinates are float64 pixel or world units. A Homography is stored
// row-major as 9 numbers and is scale-ambiguous; callers that need the
// canonical form divide through by the bottom-right entry (see Normalize).
package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Point is a 2D position in pixel or projected world coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Homography is a 3x3 projective transform stored row-major.
type Homography [9]float64

// Identity returns the identity homography.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// degenerateW is the denominator magnitude below which a projection is
// treated as degenerate and the origin sentinel is returned instead.
const degenerateW = 1e-12

// Apply projects p through h. When the projective denominator is within
// degenerateW of zero the origin is returned; this happens transiently while
// the optimizer explores parameter space and must not abort the caller.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < degenerateW {
		return Point{}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Compose returns the matrix product a*b, i.e. the transform that applies b
// first and then a.
func Compose(a, b Homography) Homography {
	var out mat.Dense
	out.Mul(a.dense(), b.dense())
	return fromDense(&out)
}

// Invert returns the inverse of h. The second return value is false when h
// is numerically singular.
func (h Homography) Invert() (Homography, bool) {
	var inv mat.Dense
	if err := inv.Inverse(h.dense()); err != nil {
		return Identity(), false
	}
	return fromDense(&inv), true
}

// Cond returns the 2-norm condition number of h, a rough indicator of how
// well-posed the fitted calibration is.
func (h Homography) Cond() float64 {
	return mat.Cond(h.dense(), 2)
}

// Normalize scales h so the bottom-right entry is exactly 1. If that entry
// is (near) zero, h is returned unchanged.
func (h Homography) Normalize() Homography {
	if math.Abs(h[8]) < degenerateW {
		return h
	}
	var out Homography
	for i, v := range h {
		out[i] = v / h[8]
	}
	return out
}

func (h Homography) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], h[8]})
}

func fromDense(d *mat.Dense) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[3*r+c] = d.At(r, c)
		}
	}
	return h
}

// Undistort removes single-coefficient division-model radial distortion from
// p. The squared radius is normalized by diagonal² so k1 is comparable
// across image resolutions. k1 == 0 is the identity.
func Undistort(p Point, k1 float64, center Point, diagonal float64) Point {
	if k1 == 0 {
		return p
	}
	dx := p.X - center.X
	dy := p.Y - center.Y
	r2 := (dx*dx + dy*dy) / (diagonal * diagonal)
	f := 1 + k1*r2
	return Point{X: center.X + dx/f, Y: center.Y + dy/f}
}

// NormalizePoints applies Hartley normalization: the points are translated
// so their centroid is the origin and scaled so the mean distance to the
// centroid is sqrt(2). It returns the transformed points and the similarity
// transform T that maps original points to normalized ones; invert T to undo
// the normalization. A degenerate set (all points coincident) falls back to
// unit scale.
func NormalizePoints(pts []Point) ([]Point, Homography) {
	if len(pts) == 0 {
		return nil, Identity()
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)

	norms := make([]float64, len(pts))
	for i, p := range pts {
		norms[i] = math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist := stat.Mean(norms, nil)
	scale := 1.0
	if meanDist > 0 {
		scale = math.Sqrt2 / meanDist
	}

	t := Homography{scale, 0, -scale * cx, 0, scale, -scale * cy, 0, 0, 1}
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out, t
}
