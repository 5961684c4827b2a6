// Package regime classifies market trend from a benchmark series and
// layers trade-level analysis on top of the universe backtester: pairing
// BUY/SELL fills into round trips, attributing each round trip to the
// regime it was entered under, and comparing strategy versions.
package regime

import (
	"math"
	"sort"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/strategy"
)

// LabelerConfig parameterizes benchmark regime labeling.
type LabelerConfig struct {
	BenchmarkSymbol string // KODEX KOSDAQ150 ETF by default
	MAWindow        int
	SlopeWindow     int // MA difference lookback
}

// DefaultLabelerConfig returns the production labeling parameters.
func DefaultLabelerConfig() LabelerConfig {
	return LabelerConfig{
		BenchmarkSymbol: "229200",
		MAWindow:        200,
		SlopeWindow:     20,
	}
}

// BuildTable labels each benchmark bar:
//
//	Bull     close > MA and MA slope > 0
//	Bear     close < MA and MA slope < 0
//	Sideways otherwise
//	Unknown  while MA or slope is still warming up
//
// bars must be sorted by date ascending.
func BuildTable(bars []domain.Bar, cfg LabelerConfig) []domain.RegimePoint {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ma := strategy.RollingMean(closes, cfg.MAWindow)
	slope := strategy.DiffN(ma, cfg.SlopeWindow)

	points := make([]domain.RegimePoint, len(bars))
	for i, b := range bars {
		label := domain.RegimeSideways
		switch {
		case math.IsNaN(ma[i]) || math.IsNaN(slope[i]):
			label = domain.RegimeUnknown
		case b.Close > ma[i] && slope[i] > 0:
			label = domain.RegimeBull
		case b.Close < ma[i] && slope[i] < 0:
			label = domain.RegimeBear
		}
		points[i] = domain.RegimePoint{
			Date:    b.Date,
			Label:   label,
			Close:   b.Close,
			MA:      ma[i],
			MASlope: slope[i],
		}
	}
	return points
}

// LabelFor returns the forward-filled label for date: the label of the
// latest benchmark point at or before it, Unknown when date precedes
// the whole table. points must be sorted by date ascending.
func LabelFor(points []domain.RegimePoint, date time.Time) domain.Regime {
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Date.After(date)
	})
	if idx == 0 {
		return domain.RegimeUnknown
	}
	return points[idx-1].Label
}

// Attach maps each trading date to its forward-filled benchmark label,
// in the shape the backtest engine consumes for sideways dampening.
func Attach(points []domain.RegimePoint, dates []time.Time) map[time.Time]domain.Regime {
	out := make(map[time.Time]domain.Regime, len(dates))
	for _, d := range dates {
		out[d] = LabelFor(points, d)
	}
	return out
}
