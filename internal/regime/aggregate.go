package regime

import (
	"sort"

	"hsms-trader/internal/domain"
)

// LabeledTrip is a round trip attributed to the regime its entry date
// fell under.
type LabeledTrip struct {
	domain.RoundTrip

	Symbol string
	Regime domain.Regime
}

// LabelTrips attributes each round trip to the benchmark regime in
// force on its entry date.
func LabelTrips(symbol string, trips []domain.RoundTrip, points []domain.RegimePoint) []LabeledTrip {
	out := make([]LabeledTrip, len(trips))
	for i, tr := range trips {
		out[i] = LabeledTrip{
			RoundTrip: tr,
			Symbol:    symbol,
			Regime:    LabelFor(points, tr.EntryDate),
		}
	}
	return out
}

// Aggregate groups labeled round trips by regime: trade count, win
// rate, mean and median trade return, and total pnl. Summaries come
// back sorted by trade count descending (regime name breaks ties).
func Aggregate(trips []LabeledTrip) []domain.RegimeSummary {
	groups := make(map[domain.Regime][]LabeledTrip)
	for _, tr := range trips {
		groups[tr.Regime] = append(groups[tr.Regime], tr)
	}

	summaries := make([]domain.RegimeSummary, 0, len(groups))
	for regime, group := range groups {
		returns := make([]float64, 0, len(group))
		wins := 0
		totalPnL := 0.0
		for _, tr := range group {
			returns = append(returns, tr.Return)
			if tr.Return > 0 {
				wins++
			}
			totalPnL += tr.PnL
		}

		winRate := float64(wins) / float64(len(group))
		summaries = append(summaries, domain.RegimeSummary{
			Regime:         regime,
			Trades:         len(group),
			WinRate:        &winRate,
			AvgTradeReturn: mean(returns),
			MedTradeReturn: median(returns),
			TotalPnL:       totalPnL,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Trades != summaries[j].Trades {
			return summaries[i].Trades > summaries[j].Trades
		}
		return summaries[i].Regime < summaries[j].Regime
	})
	return summaries
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
