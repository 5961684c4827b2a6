// Package backtest simulates the HSMS strategies over one symbol's
// daily bar series: a two-state (flat/long) machine with cost-aware,
// look-ahead-safe fills, emitting a trade log and an equity curve.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/strategy"
)

// Engine construction and run errors.
var (
	ErrNonPositiveCash = errors.New("initial cash must be positive")
	ErrNilStrategy     = errors.New("strategy must not be nil")
	ErrEngineConsumed  = errors.New("engine already ran; construct a fresh instance")
)

// auxWindow is the lookback of the auxiliary volume-average and
// absolute-return-average columns used by the sideways filter.
const auxWindow = 20

// Dampening configures the regime-conditional buy filter. On bars
// labeled Sideways a buy signal survives only when volume is at least
// MinVolumeRatio times its trailing average and the trailing average
// absolute daily return is at least MinAbsReturnMA.
type Dampening struct {
	MinVolumeRatio float64
	MinAbsReturnMA float64
}

// DefaultDampening returns the production sideways-filter thresholds.
func DefaultDampening() Dampening {
	return Dampening{
		MinVolumeRatio: 1.3,
		MinAbsReturnMA: 0.012,
	}
}

// Options configures an Engine.
type Options struct {
	Symbol      string
	InitialCash float64
	Strategy    strategy.Strategy
	Cost        domain.CostConfig

	// Regimes optionally maps trading dates to regime labels. Bars
	// whose date is absent are treated as unlabeled. Only the Sideways
	// label has an effect (see Dampening).
	Regimes map[time.Time]domain.Regime

	// Dampening holds the sideways-filter thresholds. The zero value
	// is replaced with DefaultDampening.
	Dampening Dampening
}

// Engine walks one symbol's bar series and maintains cash and position
// state. An Engine is single-use: construct, Run once, then read the
// equity curve and trade log.
type Engine struct {
	opts   Options
	cash   float64
	qty    int64
	entry  float64
	trades []domain.Trade
	ran    bool
}

// New validates opts and creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.InitialCash <= 0 {
		return nil, ErrNonPositiveCash
	}
	if opts.Strategy == nil {
		return nil, ErrNilStrategy
	}
	if err := opts.Cost.Validate(); err != nil {
		return nil, fmt.Errorf("cost config: %w", err)
	}
	if opts.Dampening == (Dampening{}) {
		opts.Dampening = DefaultDampening()
	}
	return &Engine{opts: opts, cash: opts.InitialCash}, nil
}

// Run simulates the strategy over bars and returns the equity curve,
// one point per bar, marked at each bar's close. bars is not mutated;
// an empty series yields an empty curve.
func (e *Engine) Run(bars []domain.Bar) ([]domain.EquityPoint, error) {
	if e.ran {
		return nil, ErrEngineConsumed
	}
	e.ran = true

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	if err := domain.ValidateBars(sorted); err != nil {
		return nil, fmt.Errorf("symbol %s: %w", e.opts.Symbol, err)
	}

	curve := make([]domain.EquityPoint, 0, len(sorted))
	if len(sorted) == 0 {
		return curve, nil
	}

	signals := e.opts.Strategy.GenerateSignals(sorted)
	volMA, absRetMA := auxColumns(sorted)
	cost := e.opts.Cost

	for i, bar := range sorted {
		var execPrice float64
		var tradeDate time.Time
		executable := true

		switch cost.FillMode {
		case domain.FillNextDayOpen:
			if i == len(sorted)-1 {
				// No next bar to fill against: the signal is dropped,
				// not deferred.
				executable = false
			} else {
				execPrice = sorted[i+1].Open
				tradeDate = sorted[i+1].Date
			}
		default:
			execPrice = bar.Close
			tradeDate = bar.Date
		}

		buySig := signals[i].Buy
		sellSig := signals[i].Sell

		if buySig && e.opts.Regimes[bar.Date] == domain.RegimeSideways {
			ratio := bar.Volume / volMA[i]
			if !(ratio >= e.opts.Dampening.MinVolumeRatio && absRetMA[i] >= e.opts.Dampening.MinAbsReturnMA) {
				buySig = false
			}
		}

		if executable {
			buyPrice := execPrice * (1 + cost.SlippageRate)
			sellPrice := execPrice * (1 - cost.SlippageRate)

			switch {
			case e.qty == 0 && buySig:
				qty := int64(math.Floor(e.cash / (buyPrice * (1 + cost.FeeRate))))
				total := float64(qty) * buyPrice * (1 + cost.FeeRate)
				if qty > 0 && total <= e.cash {
					e.cash -= total
					e.qty = qty
					e.entry = buyPrice
					e.trades = append(e.trades, domain.Trade{
						Date:  tradeDate,
						Side:  domain.SideBuy,
						Price: buyPrice,
						Qty:   qty,
					})
				}
			case e.qty > 0 && sellSig:
				proceeds := float64(e.qty) * sellPrice * (1 - cost.FeeRate - cost.TaxRate)
				e.cash += proceeds
				e.trades = append(e.trades, domain.Trade{
					Date:  tradeDate,
					Side:  domain.SideSell,
					Price: sellPrice,
					Qty:   e.qty,
					PnL:   (sellPrice - e.entry) * float64(e.qty),
				})
				e.qty = 0
				e.entry = 0
			}
		}

		curve = append(curve, domain.EquityPoint{
			Date:        bar.Date,
			Close:       bar.Close,
			Cash:        e.cash,
			PositionQty: e.qty,
			Equity:      e.cash + float64(e.qty)*bar.Close,
		})
	}
	return curve, nil
}

// Trades returns the fills recorded during Run, in emission order.
func (e *Engine) Trades() []domain.Trade {
	out := make([]domain.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Cash returns the current cash balance.
func (e *Engine) Cash() float64 {
	return e.cash
}

// PositionQty returns the currently held quantity.
func (e *Engine) PositionQty() int64 {
	return e.qty
}

// auxColumns computes the sideways-filter inputs: a 20-bar volume
// moving average and a 20-bar moving average of the absolute daily
// return. Both are NaN during warm-up, which fails the filter and
// drops the buy.
func auxColumns(bars []domain.Bar) (volMA, absRetMA []float64) {
	volumes := make([]float64, len(bars))
	absRet := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
		if i == 0 {
			absRet[i] = math.NaN()
		} else {
			absRet[i] = math.Abs(b.Close/bars[i-1].Close - 1)
		}
	}
	return strategy.RollingMean(volumes, auxWindow), strategy.RollingMean(absRet, auxWindow)
}
