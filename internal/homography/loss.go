package homography

import (
	"math"

	"github.com/banshee-data/distance.report/internal/geom"
)

// params holds the 8 free homography parameters h0..h7; h8 is fixed at 1.
type params [8]float64

func (p params) matrix() geom.Homography {
	return geom.Homography{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7], 1}
}

// segment is one reference line prepared for optimization: undistorted,
// Hartley-normalized endpoints plus its ground truth and loss weight.
type segment struct {
	a, b       geom.Point
	trueLength float64
	weight     float64
	ux, uy     float64 // unit direction implied by the ground-truth angle
}

// problem carries the full data of one optimization run. The isotropy and
// orthogonality terms are defined over the whole point set, not per line,
// which is why gradients are taken numerically (see gradient).
type problem struct {
	segs       []segment
	orthoPairs [][2]int // index pairs with near-perpendicular ground truth

	isotropyWeight float64
	isotropyFloor  float64
	orthoWeight    float64
}

// lossTerm is a pure function of the parameter vector given fixed data.
type lossTerm func(p params, prob *problem) float64

// lossTerms lists the independent terms summed into the total loss.
var lossTerms = []lossTerm{lengthLoss, alignmentLoss, isotropyLoss, orthogonalityLoss}

func totalLoss(p params, prob *problem) float64 {
	var sum float64
	for _, term := range lossTerms {
		sum += term(p, prob)
	}
	return sum
}

// lengthLoss penalizes the squared difference between each segment's
// projected length and its true length.
func lengthLoss(p params, prob *problem) float64 {
	h := p.matrix()
	var sum float64
	for _, s := range prob.segs {
		r := h.Apply(s.a).Dist(h.Apply(s.b)) - s.trueLength
		sum += s.weight * r * r
	}
	return sum
}

// alignmentLoss penalizes the component of each projected direction that is
// orthogonal to the segment's ground-truth direction. The projected
// direction is unit-normalized first so rotation error is penalized
// independently of length error.
func alignmentLoss(p params, prob *problem) float64 {
	h := p.matrix()
	var sum float64
	for _, s := range prob.segs {
		d := h.Apply(s.b).Sub(h.Apply(s.a))
		n := math.Hypot(d.X, d.Y)
		if n == 0 {
			continue
		}
		cross := (d.X*s.uy - d.Y*s.ux) / n
		sum += s.weight * cross * cross
	}
	return sum
}

// isotropyLoss is the anti-collapse regularizer. The length and alignment
// terms alone are under-constrained; without this term gradient descent can
// flatten the whole projected point cloud onto a line. The penalty engages
// when the spread ratio sqrt(λmin/λmax) of the projected endpoint
// covariance drops below the configured floor.
func isotropyLoss(p params, prob *problem) float64 {
	h := p.matrix()
	n := 2 * len(prob.segs)
	if n < 2 {
		return 0
	}

	pts := make([]geom.Point, 0, n)
	for _, s := range prob.segs {
		pts = append(pts, h.Apply(s.a), h.Apply(s.b))
	}

	var mx, my float64
	for _, q := range pts {
		mx += q.X
		my += q.Y
	}
	mx /= float64(n)
	my /= float64(n)

	var cxx, cxy, cyy float64
	for _, q := range pts {
		dx := q.X - mx
		dy := q.Y - my
		cxx += dx * dx
		cxy += dx * dy
		cyy += dy * dy
	}
	cxx /= float64(n)
	cxy /= float64(n)
	cyy /= float64(n)

	// Eigenvalues of the 2x2 covariance via the trace/determinant closed
	// form: λ = (tr ± sqrt(tr² − 4 det)) / 2.
	tr := cxx + cyy
	det := cxx*cyy - cxy*cxy
	disc := tr*tr - 4*det
	if disc < 0 {
		disc = 0
	}
	root := math.Sqrt(disc)
	lMax := (tr + root) / 2
	lMin := (tr - root) / 2
	if lMin < 0 {
		lMin = 0
	}
	if lMax <= 0 {
		return prob.isotropyWeight * prob.isotropyFloor * prob.isotropyFloor
	}

	spread := math.Sqrt(lMin) / math.Sqrt(lMax)
	if spread >= prob.isotropyFloor {
		return 0
	}
	deficit := prob.isotropyFloor - spread
	return prob.isotropyWeight * deficit * deficit
}

// orthogonalityLoss penalizes the squared cosine between the projected
// directions of every line pair whose ground-truth directions are
// perpendicular.
func orthogonalityLoss(p params, prob *problem) float64 {
	if len(prob.orthoPairs) == 0 {
		return 0
	}
	h := p.matrix()
	var sum float64
	for _, pair := range prob.orthoPairs {
		s1 := prob.segs[pair[0]]
		s2 := prob.segs[pair[1]]
		d1 := h.Apply(s1.b).Sub(h.Apply(s1.a))
		d2 := h.Apply(s2.b).Sub(h.Apply(s2.a))
		n1 := math.Hypot(d1.X, d1.Y)
		n2 := math.Hypot(d2.X, d2.Y)
		if n1 == 0 || n2 == 0 {
			continue
		}
		cos := (d1.X*d2.X + d1.Y*d2.Y) / (n1 * n2)
		sum += prob.orthoWeight * cos * cos
	}
	return sum
}

// gradient returns the finite-difference gradient of the summed loss. Each
// term contributes its own forward-difference partials, keeping the terms
// independently testable. Numerical differentiation is deliberate: the
// isotropy and orthogonality terms are defined over the global point set,
// and the problem sizes (a handful of lines) make an analytic Jacobian
// needless complexity.
func gradient(p params, prob *problem, eps float64) [8]float64 {
	var grad [8]float64
	for _, term := range lossTerms {
		base := term(p, prob)
		for i := 0; i < 8; i++ {
			perturbed := p
			perturbed[i] += eps
			grad[i] += (term(perturbed, prob) - base) / eps
		}
	}
	return grad
}
