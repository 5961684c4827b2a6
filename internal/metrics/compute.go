// Package metrics provides pure functions over a backtest's equity
// curve and trade log. Quantities that can be undefined (win rate with
// no closed trades, Sharpe on a degenerate curve) return an ok flag
// instead of a zero that callers could mistake for a real value.
package metrics

import (
	"errors"
	"math"

	"hsms-trader/internal/domain"
)

// Errors returned by curve-based metrics.
var (
	ErrEmptyCurve        = errors.New("equity curve is empty")
	ErrNonPositiveEquity = errors.New("initial equity must be positive")
)

// Number of trading days used to annualize daily Sharpe.
const tradingDaysPerYear = 252

// TotalReturn computes (final − initial) / initial over the curve.
func TotalReturn(curve []domain.EquityPoint) (float64, error) {
	if len(curve) == 0 {
		return 0, ErrEmptyCurve
	}
	initial := curve[0].Equity
	if initial <= 0 {
		return 0, ErrNonPositiveEquity
	}
	return (curve[len(curve)-1].Equity - initial) / initial, nil
}

// MaxDrawdown returns the worst peak-to-trough decline as a fraction,
// always <= 0. A monotonically non-decreasing curve (or an empty one)
// yields 0.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	mdd := 0.0
	peak := math.Inf(-1)
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := p.Equity/peak - 1; dd < mdd {
				mdd = dd
			}
		}
	}
	return mdd
}

// WinRate returns the fraction of SELL trades with positive pnl. The
// second result is false when there are no SELL trades; callers must
// not coerce that case to zero.
func WinRate(trades []domain.Trade) (float64, bool) {
	sells, wins := 0, 0
	for _, t := range trades {
		if t.Side != domain.SideSell {
			continue
		}
		sells++
		if t.PnL > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0, false
	}
	return float64(wins) / float64(sells), true
}

// SharpeRatio computes mean/stdev of daily equity returns annualized
// by sqrt(252), with a zero risk-free rate. The second result is false
// when the curve has fewer than 3 points, fewer than 2 computable
// returns, or zero return dispersion.
func SharpeRatio(curve []domain.EquityPoint) (float64, bool) {
	if len(curve) < 3 {
		return 0, false
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		r := curve[i].Equity/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0, false
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return 0, false
	}
	return mean / std * math.Sqrt(tradingDaysPerYear), true
}
