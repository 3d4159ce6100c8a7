package uncertainty

import (
	"math"
	"testing"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/montecarlo"
	"github.com/banshee-data/distance.report/internal/testutil"
)

func TestCombineAppliesRatio(t *testing.T) {
	b := Combine(10.0,
		montecarlo.Result{Mean: 10.0, StdDev: 0.1},
		bias.Prediction{Ratio: 1.05, Confidence: 0.8, LocalSigma: 0.05},
	)
	testutil.AssertInDelta(t, b.Corrected, 10.5, 1e-12)

	wantBias := 0.05 * 10.5
	testutil.AssertInDelta(t, b.SigmaBias, wantBias, 1e-12)
	testutil.AssertInDelta(t, b.SigmaTotal, math.Sqrt(0.1*0.1+wantBias*wantBias), 1e-12)
}

func TestCombineZeroConfidenceFallback(t *testing.T) {
	// At zero confidence the bias term falls back to 15% of the corrected
	// distance regardless of the reported local sigma.
	b := Combine(8.0,
		montecarlo.Result{Mean: 8.0, StdDev: 0},
		bias.Prediction{Ratio: 1.0, Confidence: 0, LocalSigma: 0.15},
	)
	testutil.AssertInDelta(t, b.SigmaBias, 0.15*8.0, 1e-12)
}

func TestCombineIntervalMultipliers(t *testing.T) {
	b := Combine(10.0,
		montecarlo.Result{Mean: 10.0, StdDev: 0.3},
		bias.Prediction{Ratio: 1.0, Confidence: 1.0, LocalSigma: 0.02},
	)
	tests := []struct {
		name string
		got  float64
		z    float64
	}{
		{"ci90", b.CI90, 1.645},
		{"ci95", b.CI95, 1.960},
		{"ci99", b.CI99, 2.576},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertInDelta(t, tt.got, tt.z*b.SigmaTotal, 1e-12)
		})
	}
	// Interval widths are strictly ordered.
	if !(b.CI90 < b.CI95 && b.CI95 < b.CI99) {
		t.Errorf("intervals not ordered: %v %v %v", b.CI90, b.CI95, b.CI99)
	}
}

func TestCombineOrthogonal(t *testing.T) {
	// With one sigma source zeroed the total equals the other source.
	mcOnly := Combine(10,
		montecarlo.Result{StdDev: 0.25},
		bias.Prediction{Ratio: 1.0, Confidence: 1.0, LocalSigma: 0},
	)
	testutil.AssertInDelta(t, mcOnly.SigmaTotal, 0.25, 1e-12)
}
