package regime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hsms-trader/internal/backtest"
	"hsms-trader/internal/domain"
	"hsms-trader/internal/metrics"
	"hsms-trader/internal/storage"
	"hsms-trader/internal/strategy"
)

// AnalyzerOptions configures an Analyzer.
type AnalyzerOptions struct {
	// BarStore supplies the benchmark series and each symbol's bars.
	// Required.
	BarStore storage.BarStore

	Labeler LabelerConfig

	StrategyVersion string
	StrategyConfig  strategy.Config2
	Cost            domain.CostConfig
	InitialCash     float64

	From time.Time
	To   time.Time

	// MinBars below which a symbol is skipped; zero means 20.
	MinBars int

	Verbose bool
}

// Analysis is the output of one regime analysis run.
type Analysis struct {
	// Table is the labeled benchmark series.
	Table []domain.RegimePoint

	// Symbols holds one backtest result row per universe symbol.
	Symbols []domain.SymbolResult

	// Trips holds every closed round trip with its entry regime.
	Trips []LabeledTrip

	// Summary aggregates Trips by regime, most-traded first.
	Summary []domain.RegimeSummary
}

// Analyzer runs the backtest over a universe and attributes every
// closed round trip to the benchmark regime it was entered under.
type Analyzer struct {
	opts AnalyzerOptions
}

// NewAnalyzer validates opts and creates an Analyzer.
func NewAnalyzer(opts AnalyzerOptions) (*Analyzer, error) {
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
	if opts.Labeler.BenchmarkSymbol == "" {
		opts.Labeler = DefaultLabelerConfig()
	}
	if opts.MinBars <= 0 {
		opts.MinBars = 20
	}
	return &Analyzer{opts: opts}, nil
}

// Run labels the benchmark, backtests every entry, and aggregates the
// paired trades by entry regime. A failure for one symbol becomes an
// ERROR row and the batch continues.
func (a *Analyzer) Run(ctx context.Context, entries []domain.UniverseEntry) (*Analysis, error) {
	benchBars, err := a.opts.BarStore.GetDailyBars(ctx, a.opts.Labeler.BenchmarkSymbol, time.Time{}, a.opts.To)
	if err != nil {
		return nil, fmt.Errorf("benchmark %s: %w", a.opts.Labeler.BenchmarkSymbol, err)
	}
	table := BuildTable(benchBars, a.opts.Labeler)
	a.logf("[regime] benchmark=%s bars=%d ma=%d slope=%d",
		a.opts.Labeler.BenchmarkSymbol, len(benchBars), a.opts.Labeler.MAWindow, a.opts.Labeler.SlopeWindow)

	analysis := &Analysis{Table: table}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return analysis, err
		}

		res, trades := a.runSymbol(ctx, entry, table)
		analysis.Symbols = append(analysis.Symbols, res)
		if res.Status != domain.StatusOK {
			a.logf("[regime] %s: %s %s", entry.Ticker, res.Status, res.Reason)
			continue
		}
		analysis.Trips = append(analysis.Trips, LabelTrips(entry.Ticker, PairTrades(trades), table)...)
	}

	analysis.Summary = Aggregate(analysis.Trips)
	return analysis, nil
}

func (a *Analyzer) runSymbol(ctx context.Context, entry domain.UniverseEntry, table []domain.RegimePoint) (domain.SymbolResult, []domain.Trade) {
	res := domain.SymbolResult{Symbol: entry.Ticker, Name: entry.Name}
	if res.Name == "" {
		res.Name = entry.Ticker
	}

	bars, err := a.opts.BarStore.GetDailyBars(ctx, entry.Ticker, a.opts.From, a.opts.To)
	if errors.Is(err, storage.ErrNotFound) {
		res.Status = domain.StatusSkip
		res.Reason = "no price data"
		return res, nil
	}
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("load bars: %v", err)
		return res, nil
	}
	if len(bars) < a.opts.MinBars {
		res.Status = domain.StatusSkip
		res.Reason = fmt.Sprintf("%d bars, need %d", len(bars), a.opts.MinBars)
		return res, nil
	}

	dates := make([]time.Time, len(bars))
	for i, b := range bars {
		dates[i] = b.Date
	}

	strat, _ := strategy.FromVersion(a.opts.StrategyVersion, a.opts.StrategyConfig)
	engine, err := backtest.New(backtest.Options{
		Symbol:      entry.Ticker,
		InitialCash: a.opts.InitialCash,
		Strategy:    strat,
		Cost:        a.opts.Cost,
		Regimes:     Attach(table, dates),
	})
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("engine: %v", err)
		return res, nil
	}

	curve, err := engine.Run(bars)
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("run: %v", err)
		return res, nil
	}
	if len(curve) == 0 {
		res.Status = domain.StatusSkip
		res.Reason = "empty equity curve"
		return res, nil
	}

	totalReturn, err := metrics.TotalReturn(curve)
	if err != nil {
		res.Status = domain.StatusError
		res.Reason = fmt.Sprintf("metrics: %v", err)
		return res, nil
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
	return res, trades
}

func (a *Analyzer) logf(format string, args ...any) {
	if a.opts.Verbose {
		log.Printf(format, args...)
	}
}
