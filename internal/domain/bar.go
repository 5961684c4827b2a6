package domain

import (
	"fmt"
	"time"
)

// Bar represents one trading day of a symbol.
// Corresponds to one row of daily_bars in ClickHouse (or one CSV line).
type Bar struct {
	Date          time.Time // trading day, truncated to calendar date
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	ForeignNetBuy float64 // foreign-investor net buy quantity; 0 when absent
}

// EquityPoint is one row of the daily equity curve emitted by the
// backtest engine. Equity is always marked at the bar's close.
type EquityPoint struct {
	Date        time.Time
	Close       float64
	Cash        float64
	PositionQty int64
	Equity      float64 // Cash + PositionQty*Close
}

// ValidateBars checks the structural invariants a bar series must hold
// before it enters the backtest engine: strictly increasing dates with
// no duplicates, and positive open/close prices. An empty series is
// valid (it produces an empty run, not an error).
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if b.Open <= 0 || b.Close <= 0 {
			return fmt.Errorf("bar %d (%s): open/close must be positive, got open=%v close=%v",
				i, b.Date.Format("2006-01-02"), b.Open, b.Close)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d (%s): volume must be non-negative, got %v",
				i, b.Date.Format("2006-01-02"), b.Volume)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("bar %d (%s): dates must be strictly increasing (previous %s)",
				i, b.Date.Format("2006-01-02"), bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}
