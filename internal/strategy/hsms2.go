package strategy

import "hsms-trader/internal/domain"

// Compile-time interface check.
var _ Strategy = (*HSMS2)(nil)

// Config2 holds the HSMS 2.0 parameter set: the 1.0 parameters plus a
// foreign-investor flow filter.
type Config2 struct {
	Config

	ForeignLookback int     // rolling-sum window over foreign net buy
	ForeignMinSum   float64 // buy requires the rolling sum to exceed this
}

// DefaultConfig2 returns the production HSMS 2.0 parameters.
func DefaultConfig2() Config2 {
	return Config2{
		Config:          DefaultConfig(),
		ForeignLookback: 5,
		ForeignMinSum:   0.0,
	}
}

// HSMS2 is HSMS version 2.0: the 1.0 rules gated by foreign-investor
// flow. Buy additionally requires the trailing foreign net-buy sum to
// exceed ForeignMinSum; a negative trailing sum forces a sell signal.
//
// A series without foreign-flow data carries zeros in ForeignNetBuy,
// which keeps the filter neutral: a zero sum neither clears a positive
// threshold nor triggers the negative-sum sell.
type HSMS2 struct {
	cfg Config2
}

// NewHSMS2 creates an HSMS 2.0 strategy with the given parameters.
func NewHSMS2(cfg Config2) *HSMS2 {
	return &HSMS2{cfg: cfg}
}

// Name returns "hsms-2.0".
func (s *HSMS2) Name() string {
	return "hsms-2.0"
}

// GenerateSignals implements Strategy.
func (s *HSMS2) GenerateSignals(bars []domain.Bar) []SignalRow {
	rows := baseRows(bars, s.cfg.Config)
	if len(bars) == 0 {
		return rows
	}

	foreign := make([]float64, len(bars))
	for i, b := range bars {
		foreign[i] = b.ForeignNetBuy
	}
	foreignSum := RollingSum(foreign, s.cfg.ForeignLookback)

	for i := range rows {
		r := &rows[i]
		r.ForeignSum = foreignSum[i]
		r.Buy = r.Close > r.MA &&
			r.Momentum > 0 &&
			r.Volume > r.VolAvg*s.cfg.VolumeMultiplier &&
			r.ForeignSum > s.cfg.ForeignMinSum
		r.Sell = r.Close < r.MA*0.99 ||
			r.Momentum < 0 ||
			r.ForeignSum < 0
	}
	return rows
}
