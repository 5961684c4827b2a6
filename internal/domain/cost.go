package domain

import "fmt"

// FillMode selects which price a simulated order executes at.
type FillMode string

const (
	// FillSameDayClose executes at the signal bar's close. Useful for
	// comparisons but optimistic about intraday execution.
	FillSameDayClose FillMode = "close"

	// FillNextDayOpen executes at the next bar's open. This is the
	// look-ahead-safe default; a signal on the last bar is dropped.
	FillNextDayOpen FillMode = "next_open"
)

// IsValid checks if the fill mode is a known value.
func (m FillMode) IsValid() bool {
	return m == FillSameDayClose || m == FillNextDayOpen
}

// CostConfig bundles the execution-cost assumptions of a backtest run.
// Rates are fractions (15 bps = 0.0015); the bps fields in the YAML
// config divide by 10,000 before constructing this.
type CostConfig struct {
	FillMode     FillMode
	FeeRate      float64 // applied to both sides
	TaxRate      float64 // sell side only (KRX transaction tax)
	SlippageRate float64 // against the trader: buys dearer, sells cheaper
}

// Validate checks range sanity. Rates must be non-negative fractions.
func (c CostConfig) Validate() error {
	if !c.FillMode.IsValid() {
		return fmt.Errorf("invalid fill mode %q", c.FillMode)
	}
	if c.FeeRate < 0 || c.TaxRate < 0 || c.SlippageRate < 0 {
		return fmt.Errorf("cost rates must be non-negative: fee=%v tax=%v slippage=%v",
			c.FeeRate, c.TaxRate, c.SlippageRate)
	}
	return nil
}
