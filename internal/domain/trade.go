package domain

import "time"

// Side identifies the direction of a trade or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is one fill recorded by the backtest engine. Trades are
// append-only and ordered by emission time; a BUY is followed by at
// most one matching SELL (the engine holds a single open lot).
type Trade struct {
	Date  time.Time
	Side  Side
	Price float64 // realized fill price (slippage included)
	Qty   int64
	PnL   float64 // 0 for BUY; (fill price − entry price) × qty for SELL, pre-cost
}

// RoundTrip is a BUY paired with its closing SELL.
type RoundTrip struct {
	EntryDate  time.Time
	ExitDate   time.Time
	EntryPrice float64
	ExitPrice  float64
	Qty        int64
	PnL        float64
	Return     float64 // PnL / (EntryPrice × Qty)
}
