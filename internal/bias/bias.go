// Package bias models a smooth multiplicative correction field over
// image-plane position, learned from validation measurements with known
// ground truth.
//
// The model is a fixed-bandwidth Gaussian kernel regression over the ratio
// trueDistance/measuredDistance. Accumulated kernel mass doubles as a
// confidence score clamped to [0, 1]; it is a density proxy, not a
// calibrated probability.
package bias

import (
	"math"

	"github.com/banshee-data/distance.report/internal/config"
	"github.com/banshee-data/distance.report/internal/geom"
)

// ValidationEntry is one training sample: a measurement whose true length is
// known. Entries are read-only inputs to Predict.
type ValidationEntry struct {
	Midpoint         geom.Point `json:"midpoint"`
	TrueDistance     float64    `json:"true_distance"`
	MeasuredDistance float64    `json:"measured_distance"`
}

// Prediction is the local correction at a query point. Ratio multiplies a
// raw measured distance; LocalSigma is a relative (fractional) uncertainty.
type Prediction struct {
	Ratio      float64 `json:"ratio"`
	Confidence float64 `json:"confidence"`
	LocalSigma float64 `json:"local_sigma"`
}

// Options configures the kernel regression.
type Options struct {
	KernelSigmaPx float64 // Gaussian kernel bandwidth in pixels
	MinWeight     float64 // accumulated weight below this falls back to neutral
	BaselineSigma float64 // relative sigma at zero confidence
	FloorSigma    float64 // relative sigma at full confidence
}

// DefaultOptions returns the production kernel parameters.
func DefaultOptions() Options {
	return OptionsFromTuning(config.EmptyTuningConfig())
}

// OptionsFromTuning builds Options from a loaded TuningConfig.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	return Options{
		KernelSigmaPx: cfg.GetBiasKernelSigma(),
		MinWeight:     cfg.GetBiasMinWeight(),
		BaselineSigma: cfg.GetBiasBaselineSigma(),
		FloorSigma:    cfg.GetBiasFloorSigma(),
	}
}

// Predict evaluates the bias field at mid. With no usable validation data
// (empty history, or total kernel weight below MinWeight) it returns the
// neutral ratio 1.0 with zero confidence. The returned ratio is blended
// toward neutral by confidence, so sparse data perturbs a measurement only
// slightly.
func Predict(mid geom.Point, history []ValidationEntry, opts Options) Prediction {
	neutral := Prediction{Ratio: 1.0, Confidence: 0, LocalSigma: opts.BaselineSigma}
	if len(history) == 0 {
		return neutral
	}

	twoSigmaSq := 2 * opts.KernelSigmaPx * opts.KernelSigmaPx
	var weightSum, ratioSum float64
	for _, e := range history {
		if e.MeasuredDistance <= 0 {
			continue
		}
		dx := mid.X - e.Midpoint.X
		dy := mid.Y - e.Midpoint.Y
		w := math.Exp(-(dx*dx + dy*dy) / twoSigmaSq)
		weightSum += w
		ratioSum += w * (e.TrueDistance / e.MeasuredDistance)
	}
	if weightSum < opts.MinWeight {
		return neutral
	}

	ratio := ratioSum / weightSum
	confidence := math.Min(math.Max(weightSum, 0), 1)

	return Prediction{
		Ratio:      ratio*confidence + 1.0*(1-confidence),
		Confidence: confidence,
		LocalSigma: opts.BaselineSigma*(1-confidence) + opts.FloorSigma*confidence,
	}
}
