package strategy

import (
	"math"

	"hsms-trader/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*HSMS)(nil)

// Config holds the HSMS 1.0 parameter set. Created once per run and
// never mutated.
type Config struct {
	MAWindow         int     // trend moving-average window
	MomentumWindow   int     // momentum lookback
	VolumeLookback   int     // volume average window
	VolumeMultiplier float64 // required volume vs. its average
}

// DefaultConfig returns the production HSMS 1.0 parameters.
func DefaultConfig() Config {
	return Config{
		MAWindow:         20,
		MomentumWindow:   5,
		VolumeLookback:   20,
		VolumeMultiplier: 1.1,
	}
}

// HSMS is the rule-based swing strategy, version 1.0.
//
// Buy when the close is above its moving average, momentum is positive,
// and volume exceeds its average by the configured multiplier. Sell
// when the close drops 1% below the moving average or momentum turns
// negative.
type HSMS struct {
	cfg Config
}

// NewHSMS creates an HSMS 1.0 strategy with the given parameters.
func NewHSMS(cfg Config) *HSMS {
	return &HSMS{cfg: cfg}
}

// Name returns "hsms-1.0".
func (s *HSMS) Name() string {
	return "hsms-1.0"
}

// GenerateSignals implements Strategy.
func (s *HSMS) GenerateSignals(bars []domain.Bar) []SignalRow {
	rows := baseRows(bars, s.cfg)
	for i := range rows {
		r := &rows[i]
		r.ForeignSum = math.NaN()
		r.Buy = r.Close > r.MA &&
			r.Momentum > 0 &&
			r.Volume > r.VolAvg*s.cfg.VolumeMultiplier
		r.Sell = r.Close < r.MA*0.99 || r.Momentum < 0
	}
	return rows
}

// baseRows computes the indicator columns shared by both HSMS versions.
func baseRows(bars []domain.Bar, cfg Config) []SignalRow {
	rows := make([]SignalRow, len(bars))
	if len(bars) == 0 {
		return rows
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	ma := RollingMean(closes, cfg.MAWindow)
	momentum := DiffN(closes, cfg.MomentumWindow)
	volAvg := RollingMean(volumes, cfg.VolumeLookback)

	for i, b := range bars {
		rows[i] = SignalRow{
			Bar:      b,
			MA:       ma[i],
			Momentum: momentum[i],
			VolAvg:   volAvg[i],
		}
	}
	return rows
}
