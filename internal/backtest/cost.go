package backtest

import (
	"errors"

	"hsms-trader/internal/domain"
)

// ErrInvalidSide is returned when a fill is requested for a side other
// than BUY or SELL.
var ErrInvalidSide = errors.New("invalid order side")

// ApplyFillAndCost computes the fill price and the cash-cost magnitude
// for a single fill at a reference price.
//
// BUY fills at reference × (1 + slippage); SELL fills at
// reference × (1 − slippage). The returned cost is always positive:
// fee on notional, sell-side tax on notional, and a slippage charge on
// the reference price. Note the slippage cash term is charged on the
// reference price, not the slipped fill price; the engine's inline
// accounting differs (it folds slippage into the execution price only)
// and downstream comparisons depend on each formula staying as it is.
func ApplyFillAndCost(side domain.Side, referencePrice float64, qty int64, cfg domain.CostConfig) (fillPrice, cost float64, err error) {
	notional := referencePrice * float64(qty)
	slip := referencePrice * float64(qty) * cfg.SlippageRate

	switch side {
	case domain.SideBuy:
		fillPrice = referencePrice * (1 + cfg.SlippageRate)
		cost = notional*cfg.FeeRate + slip
	case domain.SideSell:
		fillPrice = referencePrice * (1 - cfg.SlippageRate)
		cost = notional*cfg.FeeRate + notional*cfg.TaxRate + slip
	default:
		return 0, 0, ErrInvalidSide
	}
	return fillPrice, cost, nil
}
