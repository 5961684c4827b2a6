package regime

import (
	"math"

	"hsms-trader/internal/domain"
)

// PairTrades folds a BUY/SELL fill sequence into round trips. The
// trade log alternates by construction (single open lot), so each SELL
// closes the most recent BUY; a trailing open BUY yields no round trip.
func PairTrades(trades []domain.Trade) []domain.RoundTrip {
	var trips []domain.RoundTrip
	var open *domain.Trade

	for i := range trades {
		t := trades[i]
		switch t.Side {
		case domain.SideBuy:
			open = &trades[i]
		case domain.SideSell:
			if open == nil {
				continue
			}
			denom := open.Price * float64(t.Qty)
			ret := math.NaN()
			if denom != 0 {
				ret = t.PnL / denom
			}
			trips = append(trips, domain.RoundTrip{
				EntryDate:  open.Date,
				ExitDate:   t.Date,
				EntryPrice: open.Price,
				ExitPrice:  t.Price,
				Qty:        t.Qty,
				PnL:        t.PnL,
				Return:     ret,
			})
			open = nil
		}
	}
	return trips
}
