// Package homography fits the planar projective transform that maps
// undistorted pixel coordinates to real-world plane coordinates.
//
// Two calibration paths are provided. Estimate solves the exact linear
// problem when four or more full point correspondences are known (e.g. the
// corners of a rectangle of known size). OptimizeFromLines fits the same
// transform from reference line segments carrying only a true length and a
// true orientation each, an under-constrained problem solved by regularized
// gradient descent.
package homography

import (
	"math"

	"github.com/banshee-data/distance.report/internal/geom"
)

// Line is a user-supplied reference segment: two pixel endpoints, the real
// length of the segment in metres, and its real-world orientation in
// degrees (0° is one reference axis of the scene plane). Only defined lines
// with a positive true length participate in fitting.
type Line struct {
	Label      string     `json:"label"`
	Start      geom.Point `json:"start"`
	End        geom.Point `json:"end"`
	TrueLength float64    `json:"true_length"`
	AngleDeg   float64    `json:"angle_deg"`
	Defined    bool       `json:"defined"`
}

// Active reports whether the line participates in calibration.
func (l Line) Active() bool {
	return l.Defined && l.TrueLength > 0
}

// PixelLength returns the segment length in raw pixel space.
func (l Line) PixelLength() float64 {
	return l.Start.Dist(l.End)
}

// Midpoint returns the pixel-space midpoint of the segment.
func (l Line) Midpoint() geom.Point {
	return geom.Point{X: (l.Start.X + l.End.X) / 2, Y: (l.Start.Y + l.End.Y) / 2}
}

// TargetDirection returns the unit vector implied by the ground-truth
// angle: (sin a, cos a) with a in radians.
func (l Line) TargetDirection() (float64, float64) {
	a := l.AngleDeg * math.Pi / 180
	return math.Sin(a), math.Cos(a)
}

// ActiveLines filters lines down to those participating in calibration.
func ActiveLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Active() {
			out = append(out, l)
		}
	}
	return out
}

// perpendicular reports whether two ground-truth angles are within tol
// degrees of differing by 90° or 270°.
func perpendicular(a1, a2, tol float64) bool {
	d := math.Mod(math.Abs(a1-a2), 360)
	return math.Abs(d-90) < tol || math.Abs(d-270) < tol
}
