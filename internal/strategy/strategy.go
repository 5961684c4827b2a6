// Package strategy implements the HSMS swing/momentum signal family.
// A strategy is a pure function from a daily bar series to the same
// series with indicator columns and buy/sell flags attached.
package strategy

import (
	"math"

	"hsms-trader/internal/domain"
)

// SignalRow is a Bar augmented with derived indicators and signal
// flags. Indicator fields are NaN while their rolling window is still
// warming up; every predicate evaluates to false on NaN.
type SignalRow struct {
	domain.Bar

	MA         float64 // trailing moving average of close
	Momentum   float64 // close minus close N bars ago
	VolAvg     float64 // trailing moving average of volume
	ForeignSum float64 // trailing sum of foreign net buy (HSMS 2.0; NaN otherwise)

	Buy  bool
	Sell bool
}

// Strategy classifies each bar of a series as buy/sell/neither given
// only past and current bars. Implementations must be deterministic
// and side-effect free; buy and sell are not mutually exclusive here,
// the backtest engine's position state arbitrates.
type Strategy interface {
	// Name returns the strategy identifier, e.g. "hsms-1.0".
	Name() string

	// GenerateSignals computes indicator and signal columns over bars.
	// bars must be sorted by date ascending. An empty input yields an
	// empty (non-nil) output.
	GenerateSignals(bars []domain.Bar) []SignalRow
}

// RollingMean returns the trailing mean over window values. Positions
// with fewer than window observations, or any NaN inside the window,
// yield NaN.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	sums := RollingSum(values, window)
	for i := range out {
		if math.IsNaN(sums[i]) {
			out[i] = math.NaN()
		} else {
			out[i] = sums[i] / float64(window)
		}
	}
	return out
}

// RollingSum returns the trailing sum over window values with the same
// NaN warm-up semantics as RollingMean.
func RollingSum(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		valid := true
		for j := i + 1 - window; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if !valid {
			out[i] = math.NaN()
		} else {
			out[i] = sum
		}
	}
	return out
}

// DiffN returns values[i] − values[i−n], NaN for the first n positions.
func DiffN(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < n {
			out[i] = math.NaN()
		} else {
			out[i] = values[i] - values[i-n]
		}
	}
	return out
}
