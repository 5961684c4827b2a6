package backtest

import (
	"math"
	"testing"

	"hsms-trader/internal/domain"
)

func TestApplyFillAndCost_Buy(t *testing.T) {
	cfg := domain.CostConfig{
		FillMode:     domain.FillSameDayClose,
		FeeRate:      0.001,
		TaxRate:      0.002,
		SlippageRate: 0.0005,
	}

	fill, cost, err := ApplyFillAndCost(domain.SideBuy, 10000, 100, cfg)
	if err != nil {
		t.Fatalf("ApplyFillAndCost: %v", err)
	}
	if want := 10000 * 1.0005; !closeTo(fill, want) {
		t.Errorf("fill = %v, want %v", fill, want)
	}
	// fee on notional plus slippage charged on the reference price; no
	// tax on the buy side.
	if want := 1000000*0.001 + 1000000*0.0005; !closeTo(cost, want) {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestApplyFillAndCost_Sell(t *testing.T) {
	cfg := domain.CostConfig{
		FillMode:     domain.FillSameDayClose,
		FeeRate:      0.001,
		TaxRate:      0.002,
		SlippageRate: 0.0005,
	}

	fill, cost, err := ApplyFillAndCost(domain.SideSell, 10000, 100, cfg)
	if err != nil {
		t.Fatalf("ApplyFillAndCost: %v", err)
	}
	if want := 10000 * 0.9995; !closeTo(fill, want) {
		t.Errorf("fill = %v, want %v", fill, want)
	}
	if want := 1000000*0.001 + 1000000*0.002 + 1000000*0.0005; !closeTo(cost, want) {
		t.Errorf("cost = %v, want %v", cost, want)
	}
}

func TestApplyFillAndCost_InvalidSide(t *testing.T) {
	_, _, err := ApplyFillAndCost(domain.Side("HOLD"), 10000, 100, domain.CostConfig{})
	if err != ErrInvalidSide {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-6*math.Max(1, math.Abs(want))
}
