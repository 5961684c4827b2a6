package domain

import "time"

// Regime is a coarse market-trend label derived from a benchmark
// series (Bull: close above a long MA with rising slope, Bear: below
// with falling slope, Sideways: everything else, Unknown: MA warm-up).
type Regime string

const (
	RegimeBull     Regime = "Bull"
	RegimeBear     Regime = "Bear"
	RegimeSideways Regime = "Sideways"
	RegimeUnknown  Regime = "Unknown"
)

// RegimePoint is one labeled benchmark date.
type RegimePoint struct {
	Date    time.Time
	Label   Regime
	Close   float64
	MA      float64
	MASlope float64
}

// RegimeSummary aggregates round-trip trades that entered under one
// regime label.
type RegimeSummary struct {
	Regime         Regime
	Trades         int
	WinRate        *float64 // nil when Trades == 0
	AvgTradeReturn float64
	MedTradeReturn float64
	TotalPnL       float64
}
