package metrics

import (
	"math"
	"testing"
	"time"

	"hsms-trader/internal/domain"
)

func curveOf(equities ...float64) []domain.EquityPoint {
	curve := make([]domain.EquityPoint, len(equities))
	start := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	for i, eq := range equities {
		curve[i] = domain.EquityPoint{Date: start.AddDate(0, 0, i), Cash: eq, Equity: eq}
	}
	return curve
}

func TestTotalReturn(t *testing.T) {
	got, err := TotalReturn(curveOf(100, 110, 120))
	if err != nil {
		t.Fatalf("TotalReturn: %v", err)
	}
	if want := 0.2; math.Abs(got-want) > 1e-12 {
		t.Errorf("total return = %v, want %v", got, want)
	}

	if _, err := TotalReturn(nil); err != ErrEmptyCurve {
		t.Errorf("empty curve: got %v", err)
	}
	if _, err := TotalReturn(curveOf(0, 100)); err != ErrNonPositiveEquity {
		t.Errorf("zero initial equity: got %v", err)
	}
	if _, err := TotalReturn(curveOf(-5, 100)); err != ErrNonPositiveEquity {
		t.Errorf("negative initial equity: got %v", err)
	}
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name     string
		equities []float64
		want     float64
	}{
		{"empty", nil, 0},
		{"monotonic up", []float64{100, 110, 120}, 0},
		{"flat", []float64{100, 100, 100}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 90.0/120.0 - 1},
		{"worst at end", []float64{100, 150, 75}, 75.0/150.0 - 1},
		{"two dips takes deeper", []float64{100, 90, 120, 60}, 60.0/120.0 - 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MaxDrawdown(curveOf(tc.equities...))
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("mdd = %v, want %v", got, tc.want)
			}
			if got > 0 {
				t.Errorf("mdd %v > 0", got)
			}
		})
	}
}

func TestWinRate(t *testing.T) {
	sell := func(pnl float64) domain.Trade {
		return domain.Trade{Side: domain.SideSell, PnL: pnl}
	}
	buy := domain.Trade{Side: domain.SideBuy}

	if _, ok := WinRate(nil); ok {
		t.Error("no trades: expected no value")
	}
	if _, ok := WinRate([]domain.Trade{buy, buy}); ok {
		t.Error("only buys: expected no value")
	}

	got, ok := WinRate([]domain.Trade{buy, sell(100), sell(-50), buy, sell(30), sell(0)})
	if !ok {
		t.Fatal("expected a value")
	}
	// 2 of 4 sells positive; zero pnl is not a win.
	if want := 0.5; got != want {
		t.Errorf("win rate = %v, want %v", got, want)
	}
	if got < 0 || got > 1 {
		t.Errorf("win rate %v outside [0,1]", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	if _, ok := SharpeRatio(curveOf(100, 110)); ok {
		t.Error("two points: expected no value")
	}
	if _, ok := SharpeRatio(curveOf(100, 100, 100, 100)); ok {
		t.Error("zero dispersion: expected no value")
	}

	got, ok := SharpeRatio(curveOf(100, 110, 99, 115, 120))
	if !ok {
		t.Fatal("expected a value")
	}
	// Recompute by hand: daily returns, sample stdev, sqrt(252).
	rets := []float64{0.1, 99.0/110.0 - 1, 115.0/99.0 - 1, 120.0/115.0 - 1}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= 4
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= 3
	want := mean / math.Sqrt(variance) * math.Sqrt(252)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("sharpe = %v, want %v", got, want)
	}
}

func TestSharpeRatio_SkipsZeroBase(t *testing.T) {
	// A zero equity point makes the following return incomputable; it
	// is skipped rather than poisoning the series.
	curve := curveOf(100, 0, 50, 60, 70)
	if _, ok := SharpeRatio(curve); !ok {
		t.Error("expected a value from the remaining returns")
	}
}
