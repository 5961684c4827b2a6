// Package live turns end-of-day strategy signals into real orders
// through a Broker. A run has two phases: BuildPlan evaluates the
// latest universe snapshot and decides what to sell and buy, Execute
// submits the orders. Sells always go first so their proceeds fund the
// buys of the same run.
package live

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/broker"
	"hsms-trader/internal/domain"
	"hsms-trader/internal/notify"
	"hsms-trader/internal/storage"
	"hsms-trader/internal/strategy"
)

// Defaults for optional runner knobs.
const (
	// DefaultPositionRatio is the fraction of cash committed per buy.
	DefaultPositionRatio = 0.1

	// DefaultUniverseLimit caps how many symbols one run evaluates.
	DefaultUniverseLimit = 200

	// DefaultMinBars is the series length below which a symbol is
	// skipped rather than signalled on a cold indicator.
	DefaultMinBars = 20
)

// Options configures a Runner.
type Options struct {
	BarStore      storage.BarStore
	UniverseStore storage.UniverseStore
	Broker        broker.Broker

	// Notifier receives signal, order, and error alerts. Nil disables
	// notifications; a failed send never fails the run.
	Notifier notify.Notifier

	StrategyVersion string
	StrategyConfig  strategy.Config2

	// PositionRatio is the fraction of available cash spent per buy
	// order. Zero means DefaultPositionRatio.
	PositionRatio float64

	// UniverseLimit caps the evaluated snapshot. Zero means
	// DefaultUniverseLimit.
	UniverseLimit int

	// MinBars below which a symbol is skipped. Zero means
	// DefaultMinBars.
	MinBars int

	Verbose bool
}

// Intent is one planned order. Qty is fixed for sells (the full held
// quantity) and zero for buys, which are sized from cash at execution
// time.
type Intent struct {
	Symbol string
	Name   string
	Side   domain.Side
	Qty    int64

	// Price is the symbol's last close, used as the limit price.
	Price float64
}

// Plan is the outcome of one evaluation pass.
type Plan struct {
	AsOf  time.Time
	Sells []Intent
	Buys  []Intent
}

// Runner evaluates signals and routes orders.
type Runner struct {
	opts  Options
	strat strategy.Strategy
}

// NewRunner validates opts and creates a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.BarStore == nil {
		return nil, errors.New("live: bar store is required")
	}
	if opts.UniverseStore == nil {
		return nil, errors.New("live: universe store is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("live: broker is required")
	}
	strat, err := strategy.FromVersion(opts.StrategyVersion, opts.StrategyConfig)
	if err != nil {
		return nil, fmt.Errorf("live: strategy: %w", err)
	}
	if opts.PositionRatio < 0 || opts.PositionRatio > 1 {
		return nil, errors.New("live: position ratio must be in [0, 1]")
	}
	if opts.PositionRatio == 0 {
		opts.PositionRatio = DefaultPositionRatio
	}
	if opts.UniverseLimit <= 0 {
		opts.UniverseLimit = DefaultUniverseLimit
	}
	if opts.MinBars <= 0 {
		opts.MinBars = DefaultMinBars
	}
	return &Runner{opts: opts, strat: strat}, nil
}

// Run builds and executes one trading plan for asOf.
func (r *Runner) Run(ctx context.Context, asOf time.Time) (*Plan, error) {
	plan, err := r.BuildPlan(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if err := r.Execute(ctx, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// BuildPlan evaluates the last bar of every universe symbol as of asOf.
// Held symbols with a sell signal become sell intents for the full
// position; flat symbols with a buy signal become buy intents. A
// per-symbol failure is reported and skipped, never fatal.
func (r *Runner) BuildPlan(ctx context.Context, asOf time.Time) (*Plan, error) {
	entries, err := r.opts.UniverseStore.LatestUniverse(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("live: load universe: %w", err)
	}
	if len(entries) > r.opts.UniverseLimit {
		entries = entries[:r.opts.UniverseLimit]
	}

	positions, err := r.opts.Broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("live: load positions: %w", err)
	}

	plan := &Plan{AsOf: asOf}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, ok, err := r.lastSignal(ctx, entry.Ticker, asOf)
		if err != nil {
			r.alert(notify.FormatError(entry.Ticker, "signal", err.Error()))
			r.logf("[live] %s: signal: %v", entry.Ticker, err)
			continue
		}
		if !ok {
			continue
		}

		held := positions[entry.Ticker]
		switch {
		case row.Sell && held > 0:
			plan.Sells = append(plan.Sells, Intent{
				Symbol: entry.Ticker,
				Name:   entry.Name,
				Side:   domain.SideSell,
				Qty:    held,
				Price:  row.Close,
			})
			r.alert(notify.FormatSignal(entry.Ticker, r.strat.Name(), domain.SideSell, row.Close))
		case row.Buy && held == 0:
			plan.Buys = append(plan.Buys, Intent{
				Symbol: entry.Ticker,
				Name:   entry.Name,
				Side:   domain.SideBuy,
				Price:  row.Close,
			})
			r.alert(notify.FormatSignal(entry.Ticker, r.strat.Name(), domain.SideBuy, row.Close))
		}
	}

	r.logf("[live] plan %s: %d sells, %d buys", asOf.Format("2006-01-02"), len(plan.Sells), len(plan.Buys))
	return plan, nil
}

// Execute submits the plan: all sells first, then buys sized from the
// cash balance taken after the sells. Order failures are reported per
// symbol and do not stop the rest of the plan.
func (r *Runner) Execute(ctx context.Context, plan *Plan) error {
	for _, it := range plan.Sells {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.submit(ctx, it, it.Qty)
	}

	if len(plan.Buys) == 0 {
		return nil
	}

	cash, err := r.opts.Broker.GetCash(ctx)
	if err != nil {
		return fmt.Errorf("live: load cash: %w", err)
	}
	ratio := decimal.NewFromFloat(r.opts.PositionRatio)

	for _, it := range plan.Buys {
		if err := ctx.Err(); err != nil {
			return err
		}
		qty := positionSize(cash, ratio, it.Price)
		if qty <= 0 {
			r.logf("[live] %s: budget too small at price %.0f, skipping", it.Symbol, it.Price)
			continue
		}
		if r.submit(ctx, it, qty) {
			cash = cash.Sub(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(qty)))
		}
	}
	return nil
}

// positionSize is the whole number of shares a cash*ratio budget buys
// at price.
func positionSize(cash, ratio decimal.Decimal, price float64) int64 {
	p := decimal.NewFromFloat(price)
	if p.Sign() <= 0 {
		return 0
	}
	return cash.Mul(ratio).Div(p).Floor().IntPart()
}

// submit places one order and reports the outcome. Returns true when
// the broker accepted it.
func (r *Runner) submit(ctx context.Context, it Intent, qty int64) bool {
	res, err := r.opts.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: it.Symbol,
		Side:   it.Side,
		Qty:    qty,
		Price:  decimal.NewFromFloat(it.Price),
	})
	if err != nil {
		r.alert(notify.FormatError(it.Symbol, "order", err.Error()))
		r.logf("[live] %s: %s %d failed: %v", it.Symbol, it.Side, qty, err)
		return false
	}
	r.alert(notify.FormatOrder(it.Symbol, it.Side, qty, it.Price, res.OrderID))
	r.logf("[live] %s: %s %d @ %.0f accepted (%s)", it.Symbol, it.Side, qty, it.Price, res.OrderID)
	return true
}

// lastSignal evaluates the strategy over the symbol's history up to
// asOf and returns the final row. ok is false when the symbol has no
// data or too short a series.
func (r *Runner) lastSignal(ctx context.Context, symbol string, asOf time.Time) (strategy.SignalRow, bool, error) {
	bars, err := r.opts.BarStore.GetDailyBars(ctx, symbol, time.Time{}, asOf)
	if errors.Is(err, storage.ErrNotFound) {
		return strategy.SignalRow{}, false, nil
	}
	if err != nil {
		return strategy.SignalRow{}, false, err
	}
	if len(bars) < r.opts.MinBars {
		return strategy.SignalRow{}, false, nil
	}

	rows := r.strat.GenerateSignals(bars)
	if len(rows) == 0 {
		return strategy.SignalRow{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

func (r *Runner) alert(text string) {
	if r.opts.Notifier == nil {
		return
	}
	if err := r.opts.Notifier.Send(text); err != nil {
		r.logf("[live] notify: %v", err)
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.opts.Verbose {
		log.Printf(format, args...)
	}
}
