// Package montecarlo estimates the distance uncertainty induced by
// pixel-level measurement noise.
//
// For a calibrated segment it runs an ensemble of deterministically seeded
// noise simulations: each seed drives its own generator, perturbs the segment
// endpoints, and records the projected distance over a fixed number of
// iterations. The ensemble average of the per-seed means and standard
// deviations is the reported result. Identical inputs always return
// bit-identical output.
package montecarlo

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/distance.report/internal/config"
	"github.com/banshee-data/distance.report/internal/geom"
)

// Result holds the ensemble-averaged distance statistics of one run.
type Result struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Options configures an estimation run. The zero value is not a usable
// configuration; construct via DefaultOptions or OptionsFromTuning.
type Options struct {
	Seeds      int     // number of independent seeds (seed values 0..Seeds-1)
	Iterations int     // noise draws per seed
	SigmaPx    float64 // uniform noise half-width in pixels
}

// DefaultOptions returns the options used in production: 30 seeds of 100
// iterations with 2px noise.
func DefaultOptions() Options {
	return OptionsFromTuning(config.EmptyTuningConfig())
}

// OptionsFromTuning builds Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		Seeds:      cfg.GetMonteCarloSeeds(),
		Iterations: cfg.GetMonteCarloIterations(),
		SigmaPx:    cfg.GetMonteCarloSigma(),
	}
}

// lcg is the noise generator: a linear congruential generator with the
// classic Numerical Recipes constants. It is implemented here rather than
// with math/rand so that results are reproducible bit-for-bit across
// platforms and releases.
type lcg struct {
	state uint32
}

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
)

// next advances the generator and returns a uniform value in [0, 1).
func (g *lcg) next() float64 {
	g.state = g.state*lcgMultiplier + lcgIncrement
	return float64(g.state) / 4294967296.0
}

// noise returns a uniform draw in [-sigma, sigma].
func (g *lcg) noise(sigma float64) float64 {
	return (2*g.next() - 1) * sigma
}

// Estimate runs the seeded noise ensemble for the segment (a, b) projected
// through h. Endpoint noise is applied in raw pixel space, before
// undistortion. Seeds are independent, so the per-seed loop may be
// parallelized by a future caller without changing any seed's result.
func Estimate(a, b geom.Point, h geom.Homography, k1 float64, center geom.Point, diagonal float64, opts Options) Result {
	if opts.Seeds <= 0 || opts.Iterations <= 0 {
		opts = DefaultOptions()
	}
	seedMeans := make([]float64, opts.Seeds)
	seedStdDevs := make([]float64, opts.Seeds)

	for seed := 0; seed < opts.Seeds; seed++ {
		g := lcg{state: uint32(seed)}
		dists := make([]float64, opts.Iterations)
		for i := 0; i < opts.Iterations; i++ {
			na := geom.Point{X: a.X + g.noise(opts.SigmaPx), Y: a.Y + g.noise(opts.SigmaPx)}
			nb := geom.Point{X: b.X + g.noise(opts.SigmaPx), Y: b.Y + g.noise(opts.SigmaPx)}
			pa := h.Apply(geom.Undistort(na, k1, center, diagonal))
			pb := h.Apply(geom.Undistort(nb, k1, center, diagonal))
			dists[i] = pa.Dist(pb)
		}
		seedMeans[seed] = stat.Mean(dists, nil)
		if opts.Iterations > 1 {
			seedStdDevs[seed] = stat.StdDev(dists, nil)
		}
	}

	return Result{
		Mean:   stat.Mean(seedMeans, nil),
		StdDev: stat.Mean(seedStdDevs, nil),
	}
}

// MeanLength is a convenience wrapper returning only the ensemble mean of
// the projected length of (a, b). The optimizer reports per-line
// reprojection error against this stabilized estimate rather than the raw
// one-shot projection.
func MeanLength(a, b geom.Point, h geom.Homography, k1 float64, center geom.Point, diagonal float64, opts Options) float64 {
	return Estimate(a, b, h, k1, center, diagonal, opts).Mean
}
