package homography

import (
	"math"
	"testing"

	"github.com/banshee-data/distance.report/internal/geom"
)

// twoSegmentProblem builds a small problem: a horizontal and a vertical
// segment of true length 5 whose target directions are (0,1) and (1,0).
func twoSegmentProblem() *problem {
	return &problem{
		segs: []segment{
			{a: geom.Point{X: 0, Y: 0}, b: geom.Point{X: 5, Y: 0}, trueLength: 5, weight: 1, ux: 1, uy: 0},
			{a: geom.Point{X: 0, Y: 0}, b: geom.Point{X: 0, Y: 5}, trueLength: 5, weight: 1, ux: 0, uy: 1},
		},
		orthoPairs:     [][2]int{{0, 1}},
		isotropyWeight: 1e6,
		isotropyFloor:  0.2,
		orthoWeight:    1000,
	}
}

func identityParams() params {
	return params{1, 0, 0, 0, 1, 0, 0, 0}
}

func TestLengthLossZeroAtPerfectFit(t *testing.T) {
	prob := twoSegmentProblem()
	if got := lengthLoss(identityParams(), prob); got != 0 {
		t.Errorf("lengthLoss at perfect fit = %v, want 0", got)
	}
}

func TestLengthLossGrowsWithScaleError(t *testing.T) {
	prob := twoSegmentProblem()
	half := params{0.5, 0, 0, 0, 0.5, 0, 0, 0}
	// Each segment projects to length 2.5, residual 2.5, two segments.
	want := 2 * 2.5 * 2.5
	if got := lengthLoss(half, prob); math.Abs(got-want) > 1e-9 {
		t.Errorf("lengthLoss = %v, want %v", got, want)
	}
}

func TestLengthLossRespectsWeight(t *testing.T) {
	prob := twoSegmentProblem()
	prob.segs[0].weight = 50
	half := params{0.5, 0, 0, 0, 0.5, 0, 0, 0}
	want := 50*2.5*2.5 + 2.5*2.5
	if got := lengthLoss(half, prob); math.Abs(got-want) > 1e-9 {
		t.Errorf("weighted lengthLoss = %v, want %v", got, want)
	}
}

func TestAlignmentLossZeroWhenAligned(t *testing.T) {
	prob := twoSegmentProblem()
	if got := alignmentLoss(identityParams(), prob); got > 1e-12 {
		t.Errorf("alignmentLoss for aligned segments = %v, want 0", got)
	}
}

func TestAlignmentLossIgnoresScale(t *testing.T) {
	// Rotation error is penalized independently of length error: scaling
	// does not change the alignment loss.
	prob := twoSegmentProblem()
	rot := math.Pi / 6
	sin, cos := math.Sincos(rot)
	rotated := params{cos, -sin, 0, sin, cos, 0, 0, 0}
	scaledRot := params{3 * cos, -3 * sin, 0, 3 * sin, 3 * cos, 0, 0, 0}

	l1 := alignmentLoss(rotated, prob)
	l2 := alignmentLoss(scaledRot, prob)
	if l1 == 0 {
		t.Fatal("rotated segments should have nonzero alignment loss")
	}
	if math.Abs(l1-l2) > 1e-9 {
		t.Errorf("alignment loss changed with scale: %v vs %v", l1, l2)
	}
	// sin²(30°) per segment.
	want := 2 * 0.25
	if math.Abs(l1-want) > 1e-9 {
		t.Errorf("alignment loss = %v, want %v", l1, want)
	}
}

func TestIsotropyLossZeroForSpreadCloud(t *testing.T) {
	prob := twoSegmentProblem()
	if got := isotropyLoss(identityParams(), prob); got != 0 {
		t.Errorf("isotropyLoss for 2D spread = %v, want 0", got)
	}
}

func TestIsotropyLossPenalizesCollapse(t *testing.T) {
	prob := twoSegmentProblem()
	// Flatten everything onto the X axis.
	flat := params{1, 0, 0, 0, 1e-6, 0, 0, 0}
	got := isotropyLoss(flat, prob)
	if got <= 0 {
		t.Fatalf("isotropyLoss for collapsed cloud = %v, want > 0", got)
	}
	// Full collapse approaches the maximum deficit penalty W * floor².
	maxPenalty := prob.isotropyWeight * prob.isotropyFloor * prob.isotropyFloor
	if got > maxPenalty {
		t.Errorf("isotropyLoss = %v exceeds max penalty %v", got, maxPenalty)
	}
	if got < 0.9*maxPenalty {
		t.Errorf("isotropyLoss = %v, want close to max penalty %v", got, maxPenalty)
	}
}

func TestOrthogonalityLossZeroWhenPerpendicular(t *testing.T) {
	prob := twoSegmentProblem()
	if got := orthogonalityLoss(identityParams(), prob); got > 1e-12 {
		t.Errorf("orthogonalityLoss for perpendicular projection = %v, want 0", got)
	}
}

func TestOrthogonalityLossPenalizesShear(t *testing.T) {
	prob := twoSegmentProblem()
	// Shear the Y axis toward X: projected directions are no longer
	// perpendicular.
	shear := params{1, 0.5, 0, 0, 1, 0, 0, 0}
	if got := orthogonalityLoss(shear, prob); got <= 0 {
		t.Errorf("orthogonalityLoss under shear = %v, want > 0", got)
	}
}

func TestOrthogonalityLossNoPairs(t *testing.T) {
	prob := twoSegmentProblem()
	prob.orthoPairs = nil
	shear := params{1, 0.5, 0, 0, 1, 0, 0, 0}
	if got := orthogonalityLoss(shear, prob); got != 0 {
		t.Errorf("orthogonalityLoss with no pairs = %v, want 0", got)
	}
}

func TestGradientPointsDownhill(t *testing.T) {
	prob := twoSegmentProblem()
	p := params{0.7, 0.1, 0, -0.1, 1.3, 0, 0, 1e-4}
	g := gradient(p, prob, 1e-6)

	var norm float64
	for _, v := range g {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		t.Fatal("gradient vanished away from optimum")
	}

	before := totalLoss(p, prob)
	stepped := p
	for i := range stepped {
		stepped[i] -= g[i] / norm * 1e-4
	}
	after := totalLoss(stepped, prob)
	if after >= before {
		t.Errorf("small step along -gradient increased loss: %v -> %v", before, after)
	}
}

func TestPerpendicular(t *testing.T) {
	tests := []struct {
		name   string
		a1, a2 float64
		want   bool
	}{
		{"exact 90", 0, 90, true},
		{"exact 270", 0, 270, true},
		{"within tolerance", 45, 133, true},
		{"parallel", 30, 30, false},
		{"opposite", 0, 180, false},
		{"outside tolerance", 0, 96, false},
		{"negative angles", -45, 45, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := perpendicular(tt.a1, tt.a2, 5); got != tt.want {
				t.Errorf("perpendicular(%v, %v) = %v, want %v", tt.a1, tt.a2, got, tt.want)
			}
		})
	}
}
