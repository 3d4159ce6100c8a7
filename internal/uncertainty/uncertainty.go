// Package uncertainty merges the two independent error sources of a
// measurement, the pixel-noise spread from the Monte Carlo ensemble and the
// spatial bias model's local uncertainty, into one corrected distance with
// symmetric confidence intervals.
package uncertainty

import (
	"math"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/montecarlo"
)

// Standard normal critical values for two-sided intervals.
const (
	z90 = 1.645
	z95 = 1.960
	z99 = 2.576
)

// fallbackRelSigma is the relative bias-model sigma applied when the bias
// predictor has zero confidence in the query region.
const fallbackRelSigma = 0.15

// Budget is the full uncertainty breakdown of one measurement. CI fields
// are symmetric half-widths in the same units as the distances.
type Budget struct {
	Measured   float64 `json:"measured"`
	Corrected  float64 `json:"corrected"`
	SigmaMC    float64 `json:"sigma_mc"`
	SigmaBias  float64 `json:"sigma_bias"`
	SigmaTotal float64 `json:"sigma_total"`
	CI90       float64 `json:"ci90"`
	CI95       float64 `json:"ci95"`
	CI99       float64 `json:"ci99"`
}

// Combine applies the bias model's correction ratio to the raw measured
// distance and combines the two sigma sources orthogonally.
func Combine(measured float64, mc montecarlo.Result, p bias.Prediction) Budget {
	corrected := measured * p.Ratio

	sigmaBias := p.LocalSigma * corrected
	if p.Confidence == 0 {
		sigmaBias = fallbackRelSigma * corrected
	}

	sigmaTotal := math.Sqrt(mc.StdDev*mc.StdDev + sigmaBias*sigmaBias)

	return Budget{
		Measured:   measured,
		Corrected:  corrected,
		SigmaMC:    mc.StdDev,
		SigmaBias:  sigmaBias,
		SigmaTotal: sigmaTotal,
		CI90:       z90 * sigmaTotal,
		CI95:       z95 * sigmaTotal,
		CI99:       z99 * sigmaTotal,
	}
}
