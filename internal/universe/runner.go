// Package universe runs the single-symbol backtest engine across every
// symbol of a universe snapshot and collects per-symbol metrics into a
// ranked result table. A failure for one symbol never aborts the
// batch: each symbol resolves to exactly one of OK, SKIP, or ERROR.
package universe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"hsms-trader/internal/backtest"
	"hsms-trader/internal/domain"
	"hsms-trader/internal/metrics"
	"hsms-trader/internal/storage"
	"hsms-trader/internal/strategy"
)

// DefaultMinBars is the minimum series length a symbol needs after
// date filtering to be backtested at all.
const DefaultMinBars = 20

// Options configures a Runner.
type Options struct {
	// BarStore supplies each symbol's daily series. Required.
	BarStore storage.BarStore

	// StrategyVersion selects the signal rules (strategy.VersionHSMS1
	// or strategy.VersionHSMS2).
	StrategyVersion string

	// StrategyConfig is shared read-only across all symbols.
	StrategyConfig strategy.Config2

	// Cost is shared read-only across all symbols.
	Cost domain.CostConfig

	InitialCash float64

	// From/To bound the bar series per symbol; zero values leave the
	// range open on that end.
	From time.Time
	To   time.Time

	// MinBars below which a symbol is skipped. Zero means
	// DefaultMinBars.
	MinBars int

	// Regimes optionally supplies per-date labels for the sideways
	// buy filter, shared across symbols.
	Regimes map[time.Time]domain.Regime

	// Dampening overrides the sideways-filter thresholds; the zero
	// value uses the engine defaults.
	Dampening backtest.Dampening

	// Progress, when non-nil, is called after each symbol resolves.
	Progress func(done, total int, res domain.SymbolResult)

	Verbose bool
}

// Runner executes one universe backtest.
type Runner struct {
	opts Options
}

// NewRunner validates opts and creates a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.BarStore == nil {
		return nil, errors.New("bar store is required")
	}
	if opts.InitialCash <= 0 {
		return nil, backtest.ErrNonPositiveCash
	}
	if err := opts.Cost.Validate(); err != nil {
		return nil, fmt.Errorf("cost config: %w", err)
	}
	if _, err := strategy.FromVersion(opts.StrategyVersion, opts.StrategyConfig); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	if opts.MinBars <= 0 {
		opts.MinBars = DefaultMinBars
	}
	return &Runner{opts: opts}, nil
}

// Run backtests every entry and returns one row per symbol: OK rows
// first sorted by total return descending, then SKIP and ERROR rows in
// input order. The returned error reports only batch-level failures
// (context cancellation); per-symbol failures land in their rows.
func (r *Runner) Run(ctx context.Context, entries []domain.UniverseEntry) ([]domain.SymbolResult, error) {
	results := make([]domain.SymbolResult, 0, len(entries))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := r.runSymbol(ctx, entry)
		results = append(results, res)
		r.logf("[universe] %d/%d %s (%s): %s %s", i+1, len(entries), entry.Ticker, res.Name, res.Status, res.Reason)
		if r.opts.Progress != nil {
			r.opts.Progress(i+1, len(entries), res)
		}
	}

	Sort(results)
	return results, nil
}

// runSymbol resolves one symbol to a result row. Panics inside the
// engine or metrics are contained here and become ERROR rows.
func (r *Runner) runSymbol(ctx context.Context, entry domain.UniverseEntry) (res domain.SymbolResult) {
	res = domain.SymbolResult{Symbol: entry.Ticker, Name: entry.Name}
	if res.Name == "" {
		res.Name = entry.Ticker
	}

	defer func() {
		if p := recover(); p != nil {
			res = domain.SymbolResult{
				Symbol: res.Symbol,
				Name:   res.Name,
				Status: domain.StatusError,
				Reason: fmt.Sprintf("panic: %v", p),
			}
		}
	}()

	bars, err := r.opts.BarStore.GetDailyBars(ctx, entry.Ticker, r.opts.From, r.opts.To)
	if errors.Is(err, storage.ErrNotFound) {
		res.Status = domain.StatusSkip
		res.Reason = "no price data"
		return res
	}
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("load bars: %v", err)
		return res
	}
	if len(bars) < r.opts.MinBars {
		res.Status = domain.StatusSkip
		res.Reason = fmt.Sprintf("%d bars, need %d", len(bars), r.opts.MinBars)
		return res
	}

	strat, err := strategy.FromVersion(r.opts.StrategyVersion, r.opts.StrategyConfig)
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("strategy: %v", err)
		return res
	}

	engine, err := backtest.New(backtest.Options{
		Symbol:      entry.Ticker,
		InitialCash: r.opts.InitialCash,
		Strategy:    strat,
		Cost:        r.opts.Cost,
		Regimes:     r.opts.Regimes,
		Dampening:   r.opts.Dampening,
	})
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("engine: %v", err)
		return res
	}

	curve, err := engine.Run(bars)
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("run: %v", err)
		return res
	}
	if len(curve) == 0 {
		res.Status = domain.StatusSkip
		res.Reason = "empty equity curve"
		return res
	}

	totalReturn, err := metrics.TotalReturn(curve)
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("metrics: %v", err)
		return res
	}

	trades := engine.Trades()
	res.TotalReturn = totalReturn
	res.MaxDrawdown = metrics.MaxDrawdown(curve)
	res.FinalEquity = curve[len(curve)-1].Equity
	if wr, ok := metrics.WinRate(trades); ok {
		res.WinRate = &wr
	}
	if sh, ok := metrics.SharpeRatio(curve); ok {
		res.Sharpe = &sh
	}
	for _, t := range trades {
		if t.Side == domain.SideSell {
			res.TradeCount++
		}
	}
	res.Status = domain.StatusOK
	return res
}

func (r *Runner) logf(format string, args ...any) {
	if r.opts.Verbose {
		log.Printf(format, args...)
	}
}

// Sort orders a result table for presentation: OK rows first, by total
// return descending, then SKIP and ERROR rows in their original order.
func Sort(results []domain.SymbolResult) {
	sort.SliceStable(results, func(i, j int) bool {
		oi, oj := results[i].Status == domain.StatusOK, results[j].Status == domain.StatusOK
		if oi != oj {
			return oi
		}
		if oi && oj {
			return results[i].TotalReturn > results[j].TotalReturn
		}
		return false
	})
}
