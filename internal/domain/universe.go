package domain

// UniverseEntry is one eligible symbol in an as-of-date universe
// snapshot. Corresponds to one row of universe_snapshots in PostgreSQL.
type UniverseEntry struct {
	Ticker string // six-digit KRX code, e.g. "005930"
	Name   string // display name; falls back to the ticker when absent
}

// ResultStatus classifies the outcome of one symbol inside a universe
// backtest run. Exactly one status applies per symbol.
type ResultStatus string

const (
	// StatusOK means the engine produced a non-empty equity curve.
	StatusOK ResultStatus = "OK"

	// StatusSkip means the symbol was not backtested: data absent, too
	// few bars after date filtering, or an empty equity curve.
	StatusSkip ResultStatus = "SKIP"

	// StatusError means loading, signal generation, execution, or
	// metrics computation failed for this symbol.
	StatusError ResultStatus = "ERROR"
)

// SymbolResult is one row of the universe backtest result table.
// WinRate and Sharpe are nil when undefined (no sell trades / too few
// equity points), never coerced to zero.
type SymbolResult struct {
	Symbol      string
	Name        string
	TotalReturn float64
	MaxDrawdown float64
	WinRate     *float64
	Sharpe      *float64
	FinalEquity float64
	TradeCount  int // number of SELL trades (closed round trips)
	Status      ResultStatus
	Reason      string // populated for SKIP and ERROR rows
}
