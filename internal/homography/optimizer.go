package homography

import (
	"errors"
	"math"

	"github.com/banshee-data/distance.report/internal/config"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/montecarlo"
)

// ErrInsufficientLines is returned when fewer than two defined reference
// lines are supplied. It signals "not enough data yet", distinct from a
// computed but poor fit.
var ErrInsufficientLines = errors.New("homography: need at least 2 defined reference lines")

// Options configures OptimizeFromLines. Zero values are not meaningful;
// construct via DefaultOptions or OptionsFromTuning.
type Options struct {
	// Lens model, applied to every endpoint before fitting. K1 is supplied
	// as configuration and is never optimized.
	K1       float64
	Center   geom.Point
	Diagonal float64

	// Gradient descent schedule. The budget is fixed: the solver always
	// runs Iterations steps with no convergence check, trading early exit
	// for bounded, predictable runtime.
	Iterations    int
	BaseStep      float64
	MaxStep       float64
	DecayFactor   float64
	DecayInterval int
	GradEpsilon   float64

	// Loss weights.
	FirstLineWeight   float64
	IsotropyWeight    float64
	IsotropyFloor     float64
	OrthoWeight       float64
	OrthoToleranceDeg float64

	// MonteCarlo configures the ensemble used for the reported per-line
	// reprojection metrics.
	MonteCarlo montecarlo.Options
}

// DefaultOptions returns the production optimizer settings.
func DefaultOptions() Options {
	return OptionsFromTuning(config.EmptyTuningConfig())
}

// OptionsFromTuning builds Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		K1:                cfg.GetLensK1(),
		Center:            geom.Point{X: cfg.GetLensCenterX(), Y: cfg.GetLensCenterY()},
		Diagonal:          cfg.GetLensDiagonal(),
		Iterations:        cfg.GetOptimizerIterations(),
		BaseStep:          cfg.GetOptimizerBaseStep(),
		MaxStep:           cfg.GetOptimizerMaxStep(),
		DecayFactor:       cfg.GetOptimizerDecayFactor(),
		DecayInterval:     cfg.GetOptimizerDecayInterval(),
		GradEpsilon:       cfg.GetGradientEpsilon(),
		FirstLineWeight:   cfg.GetFirstLineWeight(),
		IsotropyWeight:    cfg.GetIsotropyWeight(),
		IsotropyFloor:     cfg.GetIsotropyFloor(),
		OrthoWeight:       cfg.GetOrthogonalityWeight(),
		OrthoToleranceDeg: cfg.GetOrthogonalityTolerance(),
		MonteCarlo:        montecarlo.OptionsFromTuning(cfg),
	}
}

// LineError is the reprojection quality of one reference line. The
// estimated length is the Monte Carlo ensemble mean, not the raw one-shot
// projection.
type LineError struct {
	Label           string  `json:"label"`
	TrueLength      float64 `json:"true_length"`
	EstimatedLength float64 `json:"estimated_length"`
	Error           float64 `json:"error"`
	PercentError    float64 `json:"percent_error"`
}

// Result is a fitted calibration. Matrix maps undistorted pixel
// coordinates to world metres; callers must undistort points themselves
// before applying it.
type Result struct {
	Matrix          geom.Homography `json:"matrix"`
	ConditionNumber float64         `json:"condition_number"`
	RMSE            float64         `json:"rmse"`
	MAPE            float64         `json:"mape"`
	Lines           []LineError     `json:"lines"`

	// LossHistory samples the total loss every 100 iterations, for
	// diagnostics and plotting.
	LossHistory []float64 `json:"-"`
}

// lossSampleInterval is how often the loss history records a sample.
const lossSampleInterval = 100

// OptimizeFromLines fits a homography from reference line segments. The
// solver is regularized but not guaranteed globally optimal: it always
// produces a matrix when given at least two active lines, and the reported
// RMSE/MAPE tell the caller how good the fit is. This is a documented
// limitation, not an error condition.
func OptimizeFromLines(lines []Line, opts Options) (*Result, error) {
	active := ActiveLines(lines)
	if len(active) < 2 {
		return nil, ErrInsufficientLines
	}

	// Undistort every endpoint, then Hartley-normalize the full endpoint
	// set. All optimization happens in normalized coordinates.
	raw := make([]geom.Point, 0, 2*len(active))
	for _, l := range active {
		raw = append(raw,
			geom.Undistort(l.Start, opts.K1, opts.Center, opts.Diagonal),
			geom.Undistort(l.End, opts.K1, opts.Center, opts.Diagonal),
		)
	}
	norm, t := geom.NormalizePoints(raw)

	prob := &problem{
		segs:           make([]segment, len(active)),
		isotropyWeight: opts.IsotropyWeight,
		isotropyFloor:  opts.IsotropyFloor,
		orthoWeight:    opts.OrthoWeight,
	}
	for i, l := range active {
		ux, uy := l.TargetDirection()
		w := 1.0
		if i == 0 {
			// The first line anchors global scale and orientation ahead of
			// the explicit anchor/rotation post-processing.
			w = opts.FirstLineWeight
		}
		prob.segs[i] = segment{
			a:          norm[2*i],
			b:          norm[2*i+1],
			trueLength: l.TrueLength,
			weight:     w,
			ux:         ux,
			uy:         uy,
		}
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if perpendicular(active[i].AngleDeg, active[j].AngleDeg, opts.OrthoToleranceDeg) {
				prob.orthoPairs = append(prob.orthoPairs, [2]int{i, j})
			}
		}
	}

	p := seed(prob)
	history := descend(&p, prob, opts)

	// Un-normalize, then run the deterministic post-processing chain.
	h := geom.Compose(p.matrix(), t)
	h = lockScale(h, active, opts, raw)
	h = alignToFirstLine(h, active[0], raw)
	h = canonicalizeOrientation(h, raw[0])
	h = h.Normalize()

	res := &Result{
		Matrix:          h,
		ConditionNumber: h.Cond(),
		LossHistory:     history,
	}
	res.computeMetrics(active, opts)
	return res, nil
}

// seed initializes the parameter vector from the first segment: a
// similarity that scales by the segment's true-to-pixel length ratio and
// rotates the segment onto its target direction, with a small h7
// perturbation so the perspective row is not exactly degenerate at the
// start. Starting already rotated matters: from an axis-aligned start the
// alignment term drags the descent through a long rotation in parameter
// space, and the path picks up perspective terms that no later term can
// remove.
func seed(prob *problem) params {
	s := 1.0
	cos, sin := 1.0, 0.0
	first := prob.segs[0]
	if l := first.a.Dist(first.b); l > 0 {
		s = first.trueLength / l
		dx := (first.b.X - first.a.X) / l
		dy := (first.b.Y - first.a.Y) / l
		cos = dx*first.ux + dy*first.uy
		sin = dx*first.uy - dy*first.ux
	}
	return params{s * cos, -s * sin, 0, s * sin, s * cos, 0, 0, 1e-4}
}

// backtrackLimit bounds the per-iteration step halvings in descend.
const backtrackLimit = 8

// descend runs the fixed-budget gradient descent, mutating p in place, and
// returns the sampled loss history. The step is the gradient direction
// (L2-normalized) scaled by the decaying base step, clamped to MaxStep.
// Each step must not increase the total loss: the step is halved up to
// backtrackLimit times and skipped outright if no length helps. Without the
// guard, fixed-length steps keep moving after the residual terms flatten
// out and the parameters drift along directions the line constraints do
// not pin down, notably the perspective row.
func descend(p *params, prob *problem, opts Options) []float64 {
	history := make([]float64, 0, opts.Iterations/lossSampleInterval+1)
	step := opts.BaseStep
	cur := totalLoss(*p, prob)
	for it := 0; it < opts.Iterations; it++ {
		if it > 0 && it%opts.DecayInterval == 0 {
			step *= opts.DecayFactor
		}
		if it%lossSampleInterval == 0 {
			history = append(history, cur)
		}

		g := gradient(*p, prob, opts.GradEpsilon)
		var norm float64
		for _, v := range g {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm < 1e-12 {
			continue
		}

		s := math.Min(step, opts.MaxStep)
		for k := 0; k < backtrackLimit; k++ {
			var cand params
			for i := range p {
				cand[i] = p[i] - g[i]/norm*s
			}
			if l := totalLoss(cand, prob); l <= cur {
				*p = cand
				cur = l
				break
			}
			s *= 0.5
		}
	}
	history = append(history, cur)
	return history
}

// lockScale rescales the homography uniformly so the anchor line (the
// reference line with the largest true length) projects to exactly its
// ground-truth length.
func lockScale(h geom.Homography, active []Line, opts Options, undistorted []geom.Point) geom.Homography {
	anchor := 0
	for i, l := range active {
		if l.TrueLength > active[anchor].TrueLength {
			anchor = i
		}
	}
	pa := h.Apply(undistorted[2*anchor])
	pb := h.Apply(undistorted[2*anchor+1])
	cur := pa.Dist(pb)
	if cur == 0 {
		return h
	}
	s := active[anchor].TrueLength / cur
	return geom.Compose(geom.Homography{s, 0, 0, 0, s, 0, 0, 0, 1}, h)
}

// alignToFirstLine translates the projection so the first line's start
// point lands at the origin, then rotates so its direction matches its
// ground-truth angle exactly. Both operations are isometries, so the scale
// lock is preserved.
func alignToFirstLine(h geom.Homography, first Line, undistorted []geom.Point) geom.Homography {
	p0 := h.Apply(undistorted[0])
	h = geom.Compose(geom.Homography{1, 0, -p0.X, 0, 1, -p0.Y, 0, 0, 1}, h)

	d := h.Apply(undistorted[1])
	if d.X == 0 && d.Y == 0 {
		return h
	}
	ux, uy := first.TargetDirection()
	delta := math.Atan2(uy, ux) - math.Atan2(d.Y, d.X)
	sin, cos := math.Sincos(delta)
	return geom.Compose(geom.Homography{cos, -sin, 0, sin, cos, 0, 0, 0, 1}, h)
}

// canonicalizeOrientation flips the projected Y axis if the image's
// downward row direction does not map to decreasing projected Y, so all
// calibrations share one handedness convention.
func canonicalizeOrientation(h geom.Homography, ref geom.Point) geom.Homography {
	base := h.Apply(ref)
	below := h.Apply(geom.Point{X: ref.X, Y: ref.Y + 1})
	if below.Y < base.Y {
		return h
	}
	return geom.Compose(geom.Homography{1, 0, 0, 0, -1, 0, 0, 0, 1}, h)
}

// computeMetrics fills the per-line errors plus RMSE and MAPE, using the
// Monte Carlo ensemble mean as each line's estimated length.
func (r *Result) computeMetrics(active []Line, opts Options) {
	r.Lines = make([]LineError, len(active))
	var sumSq, sumPct float64
	for i, l := range active {
		est := montecarlo.MeanLength(l.Start, l.End, r.Matrix, opts.K1, opts.Center, opts.Diagonal, opts.MonteCarlo)
		err := est - l.TrueLength
		pct := math.Abs(err) / l.TrueLength * 100
		r.Lines[i] = LineError{
			Label:           l.Label,
			TrueLength:      l.TrueLength,
			EstimatedLength: est,
			Error:           err,
			PercentError:    pct,
		}
		sumSq += err * err
		sumPct += pct
	}
	n := float64(len(active))
	r.RMSE = math.Sqrt(sumSq / n)
	r.MAPE = sumPct / n
}
