package strategy

import (
	"math"
	"testing"
	"time"

	"hsms-trader/internal/domain"
)

// testConfig uses short windows so fixtures stay small. Signal rules
// are identical at any window length.
func testConfig() Config {
	return Config{
		MAWindow:         3,
		MomentumWindow:   2,
		VolumeLookback:   3,
		VolumeMultiplier: 1.0,
	}
}

func mkBars(closes, volumes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range closes {
		bars[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   closes[i],
			High:   closes[i],
			Low:    closes[i],
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	return bars
}

func TestHSMSGenerateSignals_Empty(t *testing.T) {
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(nil)
	if rows == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(rows))
	}
}

func TestHSMSGenerateSignals_WarmupNeverSignals(t *testing.T) {
	// Strongly trending series: without warm-up protection the first
	// bars would signal on garbage indicators.
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(mkBars(
		[]float64{10, 20, 30, 40},
		[]float64{100, 200, 300, 400},
	))

	// MA(3) needs indices 0..2, so indices 0 and 1 lack history.
	for i := 0; i < 2; i++ {
		if rows[i].Buy || rows[i].Sell {
			t.Errorf("row %d: signal during warm-up (buy=%v sell=%v)", i, rows[i].Buy, rows[i].Sell)
		}
		if !math.IsNaN(rows[i].MA) {
			t.Errorf("row %d: expected NaN MA during warm-up, got %v", i, rows[i].MA)
		}
	}
}

func TestHSMSGenerateSignals_Buy(t *testing.T) {
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(mkBars(
		[]float64{10, 10, 10, 12},
		[]float64{100, 100, 100, 200},
	))

	last := rows[3]
	// MA = (10+10+12)/3 ≈ 10.67 < close 12, momentum = 12−10 = 2,
	// volume 200 > volAvg ≈ 133.
	if !last.Buy {
		t.Errorf("expected buy signal, got buy=false (ma=%v momentum=%v volAvg=%v)",
			last.MA, last.Momentum, last.VolAvg)
	}
	if last.Sell {
		t.Error("unexpected sell signal on up bar")
	}
	// Flat close at its own MA must not buy.
	if rows[2].Buy {
		t.Error("row 2: close equal to MA must not buy")
	}
}

func TestHSMSGenerateSignals_BuyRequiresVolume(t *testing.T) {
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(mkBars(
		[]float64{10, 10, 10, 12},
		[]float64{100, 100, 100, 90}, // volume below average
	))
	if rows[3].Buy {
		t.Error("buy must require volume above its average")
	}
}

func TestHSMSGenerateSignals_Sell(t *testing.T) {
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(mkBars(
		[]float64{10, 10, 10, 9},
		[]float64{100, 100, 100, 100},
	))

	last := rows[3]
	// close 9 < MA·0.99 and momentum −1 < 0: both sell conditions hold.
	if !last.Sell {
		t.Errorf("expected sell signal (ma=%v momentum=%v)", last.MA, last.Momentum)
	}
	if last.Buy {
		t.Error("unexpected buy signal on down bar")
	}
}

func TestHSMSGenerateSignals_SellOnMAOnlyWithinOnePercent(t *testing.T) {
	// Close just below the MA but within 1% must not sell on the MA
	// rule; keep momentum positive so only the MA rule is in play.
	s := NewHSMS(testConfig())
	rows := s.GenerateSignals(mkBars(
		[]float64{9, 10.5, 10.6, 10.55},
		[]float64{100, 100, 100, 100},
	))

	// MA = (10.5+10.6+10.55)/3 = 10.55; close 10.55 is not below
	// MA·0.99 ≈ 10.44, and momentum = 10.55−10.5 = 0.05 > 0.
	last := rows[3]
	if last.Momentum <= 0 {
		t.Fatalf("fixture error: momentum %v not positive", last.Momentum)
	}
	if last.Sell {
		t.Errorf("close within 1%% of MA with positive momentum must not sell (ma=%v)", last.MA)
	}
}

func TestHSMS2_ForeignFlowGatesBuy(t *testing.T) {
	cfg := Config2{Config: testConfig(), ForeignLookback: 2, ForeignMinSum: 1.5}
	bars := mkBars(
		[]float64{10, 10, 10, 12},
		[]float64{100, 100, 100, 200},
	)
	for i := range bars {
		bars[i].ForeignNetBuy = 1
	}

	s := NewHSMS2(cfg)
	rows := s.GenerateSignals(bars)
	if !rows[3].Buy {
		t.Errorf("foreign sum 2 > 1.5 with price conditions met: expected buy (foreignSum=%v)", rows[3].ForeignSum)
	}

	cfg.ForeignMinSum = 2.5
	rows = NewHSMS2(cfg).GenerateSignals(bars)
	if rows[3].Buy {
		t.Error("foreign sum 2 below threshold 2.5 must block buy")
	}
}

func TestHSMS2_NegativeForeignSumForcesSell(t *testing.T) {
	cfg := Config2{Config: testConfig(), ForeignLookback: 2, ForeignMinSum: 0}
	bars := mkBars(
		[]float64{10, 10, 10, 12}, // up bar: 1.0 rules alone would not sell
		[]float64{100, 100, 100, 200},
	)
	for i := range bars {
		bars[i].ForeignNetBuy = -5
	}

	rows := NewHSMS2(cfg).GenerateSignals(bars)
	if !rows[3].Sell {
		t.Errorf("negative foreign sum must force sell (foreignSum=%v)", rows[3].ForeignSum)
	}
}

func TestHSMS2_MissingForeignFlowIsNeutral(t *testing.T) {
	// Series loaded without a foreign-flow column carries zeros: the
	// sum is 0, which neither exceeds a positive threshold nor trips
	// the negative-sum sell.
	cfg := Config2{Config: testConfig(), ForeignLookback: 2, ForeignMinSum: 0}
	bars := mkBars(
		[]float64{10, 10, 10, 12},
		[]float64{100, 100, 100, 200},
	)

	rows := NewHSMS2(cfg).GenerateSignals(bars)
	if rows[3].Buy {
		t.Error("zero foreign sum must not clear a threshold of 0")
	}
	if rows[3].Sell {
		t.Error("zero foreign sum must not trigger the negative-sum sell")
	}
}

func TestGenerateSignals_Idempotent(t *testing.T) {
	s := NewHSMS(testConfig())
	bars := mkBars(
		[]float64{10, 11, 10, 12, 13, 11, 14},
		[]float64{100, 150, 90, 200, 250, 80, 300},
	)

	a := s.GenerateSignals(bars)
	b := s.GenerateSignals(bars)

	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Buy != b[i].Buy || a[i].Sell != b[i].Sell {
			t.Errorf("row %d: signals differ between runs", i)
		}
		if !sameFloat(a[i].MA, b[i].MA) || !sameFloat(a[i].Momentum, b[i].Momentum) {
			t.Errorf("row %d: indicators differ between runs", i)
		}
	}
}

func TestFromVersion(t *testing.T) {
	cfg := DefaultConfig2()

	s1, err := FromVersion(VersionHSMS1, cfg)
	if err != nil {
		t.Fatalf("FromVersion(v1): %v", err)
	}
	if s1.Name() != "hsms-1.0" {
		t.Errorf("v1 Name() = %q", s1.Name())
	}

	s2, err := FromVersion(VersionHSMS2, cfg)
	if err != nil {
		t.Fatalf("FromVersion(v2): %v", err)
	}
	if s2.Name() != "hsms-2.0" {
		t.Errorf("v2 Name() = %q", s2.Name())
	}

	if _, err := FromVersion("hsms-3.0", cfg); err != ErrUnknownVersion {
		t.Errorf("expected ErrUnknownVersion, got %v", err)
	}

	bad := cfg
	bad.MAWindow = 0
	if _, err := FromVersion(VersionHSMS1, bad); err != ErrInvalidWindow {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
