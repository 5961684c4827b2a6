package live

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/broker"
	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage/memory"
	"hsms-trader/internal/strategy"
)

var asOf = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	msgs []string
}

func (f *fakeNotifier) Send(text string) error {
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeNotifier) count(prefix string) int {
	n := 0
	for _, m := range f.msgs {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func testStrategyConfig() strategy.Config2 {
	return strategy.Config2{
		Config: strategy.Config{
			MAWindow:         3,
			MomentumWindow:   2,
			VolumeLookback:   3,
			VolumeMultiplier: 1.0,
		},
		ForeignLookback: 3,
	}
}

// seedBars writes four bars ending at asOf.
func seedBars(t *testing.T, store *memory.BarStore, symbol string, closes, volumes []float64) {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i := range closes {
		bars[i] = domain.Bar{
			Date:   asOf.AddDate(0, 0, i-len(closes)+1),
			Open:   closes[i],
			High:   closes[i],
			Low:    closes[i],
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	if err := store.SaveDailyBars(context.Background(), symbol, bars); err != nil {
		t.Fatalf("seed %s: %v", symbol, err)
	}
}

// buyFixture trips the buy rule on its final bar; sellFixture trips the
// sell rule; flatFixture trips neither.
var (
	buyFixture  = [][]float64{{10, 10, 10, 12}, {100, 100, 100, 200}}
	sellFixture = [][]float64{{10, 10, 10, 9}, {100, 100, 100, 100}}
	flatFixture = [][]float64{{10, 10, 10, 10}, {100, 100, 100, 100}}
)

func seedUniverse(t *testing.T, store *memory.UniverseStore, tickers ...string) {
	t.Helper()
	entries := make([]domain.UniverseEntry, len(tickers))
	for i, tk := range tickers {
		entries[i] = domain.UniverseEntry{Ticker: tk, Name: tk}
	}
	if err := store.SaveUniverse(context.Background(), asOf, entries); err != nil {
		t.Fatal(err)
	}
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.StrategyVersion == "" {
		opts.StrategyVersion = strategy.VersionHSMS1
	}
	opts.StrategyConfig = testStrategyConfig()
	opts.MinBars = 4
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNewRunner_Validation(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	pb := broker.NewPaperBroker(decimal.NewFromInt(10_000))

	if _, err := NewRunner(Options{}); err == nil {
		t.Error("empty options: expected error")
	}
	if _, err := NewRunner(Options{
		BarStore:        bars,
		UniverseStore:   unis,
		Broker:          pb,
		StrategyVersion: "hsms-9.9",
		StrategyConfig:  testStrategyConfig(),
	}); err == nil {
		t.Error("unknown strategy: expected error")
	}
	if _, err := NewRunner(Options{
		BarStore:        bars,
		UniverseStore:   unis,
		Broker:          pb,
		StrategyVersion: strategy.VersionHSMS1,
		StrategyConfig:  testStrategyConfig(),
		PositionRatio:   1.5,
	}); err == nil {
		t.Error("ratio above 1: expected error")
	}
}

func TestRun_BuysOnSignal(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	seedBars(t, bars, "BUYER", buyFixture[0], buyFixture[1])
	seedBars(t, bars, "FLAT", flatFixture[0], flatFixture[1])
	seedUniverse(t, unis, "BUYER", "FLAT")

	pb := broker.NewPaperBroker(decimal.NewFromInt(10_000))
	fn := &fakeNotifier{}
	r := newRunner(t, Options{
		BarStore:      bars,
		UniverseStore: unis,
		Broker:        pb,
		Notifier:      fn,
		PositionRatio: 0.1,
	})

	plan, err := r.Run(context.Background(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Buys) != 1 || plan.Buys[0].Symbol != "BUYER" {
		t.Fatalf("buys = %+v, want one for BUYER", plan.Buys)
	}
	if len(plan.Sells) != 0 {
		t.Fatalf("sells = %+v, want none", plan.Sells)
	}

	// Budget 10,000 * 0.1 = 1,000 at close 12 buys 83 shares.
	positions, err := pb.GetPositions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if positions["BUYER"] != 83 {
		t.Errorf("position = %d, want 83", positions["BUYER"])
	}

	cash, err := pb.GetCash(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.NewFromInt(10_000 - 83*12); !cash.Equal(want) {
		t.Errorf("cash = %s, want %s", cash, want)
	}

	if fn.count("[SIGNAL]") != 1 || fn.count("[ORDER]") != 1 {
		t.Errorf("notifications = %v, want one signal and one order", fn.msgs)
	}
}

func TestRun_SellsHeldBeforeBuying(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	seedBars(t, bars, "SELLER", sellFixture[0], sellFixture[1])
	seedBars(t, bars, "BUYER", buyFixture[0], buyFixture[1])
	seedUniverse(t, unis, "SELLER", "BUYER")

	pb := broker.NewPaperBroker(decimal.NewFromInt(10_000))
	if _, err := pb.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "SELLER",
		Side:   domain.SideBuy,
		Qty:    100,
		Price:  decimal.NewFromInt(10),
	}); err != nil {
		t.Fatal(err)
	}
	// Cash is now 9,000 with 100 shares of SELLER held.

	r := newRunner(t, Options{
		BarStore:      bars,
		UniverseStore: unis,
		Broker:        pb,
		PositionRatio: 0.1,
	})

	plan, err := r.Run(context.Background(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sells) != 1 || plan.Sells[0].Qty != 100 {
		t.Fatalf("sells = %+v, want full 100 of SELLER", plan.Sells)
	}

	positions, err := pb.GetPositions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, held := positions["SELLER"]; held {
		t.Error("SELLER still held after sell")
	}
	// Sell proceeds land before the buy is sized: cash 9,000 + 100*9 =
	// 9,900, budget 990 at close 12 buys 82 shares.
	if positions["BUYER"] != 82 {
		t.Errorf("BUYER position = %d, want 82", positions["BUYER"])
	}
}

func TestRun_SellSignalOnFlatSymbolIsIgnored(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	seedBars(t, bars, "SELLER", sellFixture[0], sellFixture[1])
	seedUniverse(t, unis, "SELLER")

	pb := broker.NewPaperBroker(decimal.NewFromInt(10_000))
	r := newRunner(t, Options{BarStore: bars, UniverseStore: unis, Broker: pb})

	plan, err := r.Run(context.Background(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sells) != 0 || len(plan.Buys) != 0 {
		t.Fatalf("plan = %+v, want empty", plan)
	}
}

func TestBuildPlan_SkipsMissingAndShortSeries(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	seedBars(t, bars, "SHORT", []float64{10, 12}, []float64{100, 200})
	seedUniverse(t, unis, "SHORT", "MISSING")

	pb := broker.NewPaperBroker(decimal.NewFromInt(10_000))
	fn := &fakeNotifier{}
	r := newRunner(t, Options{BarStore: bars, UniverseStore: unis, Broker: pb, Notifier: fn})

	plan, err := r.BuildPlan(context.Background(), asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Sells) != 0 || len(plan.Buys) != 0 {
		t.Fatalf("plan = %+v, want empty", plan)
	}
	// Thin data is a skip, not a failure worth alerting on.
	if len(fn.msgs) != 0 {
		t.Errorf("notifications = %v, want none", fn.msgs)
	}
}

func TestExecute_SkipsUnaffordableBuy(t *testing.T) {
	bars := memory.NewBarStore()
	unis := memory.NewUniverseStore()
	seedBars(t, bars, "BUYER", buyFixture[0], buyFixture[1])
	seedUniverse(t, unis, "BUYER")

	// Budget 100 * 0.1 = 10 is below the close of 12.
	pb := broker.NewPaperBroker(decimal.NewFromInt(100))
	r := newRunner(t, Options{
		BarStore:      bars,
		UniverseStore: unis,
		Broker:        pb,
		PositionRatio: 0.1,
	})

	if _, err := r.Run(context.Background(), asOf); err != nil {
		t.Fatal(err)
	}
	positions, err := pb.GetPositions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("positions = %v, want none", positions)
	}
}

func TestRun_NoUniverseSnapshot(t *testing.T) {
	r := newRunner(t, Options{
		BarStore:      memory.NewBarStore(),
		UniverseStore: memory.NewUniverseStore(),
		Broker:        broker.NewPaperBroker(decimal.NewFromInt(10_000)),
	})
	if _, err := r.Run(context.Background(), asOf); err == nil {
		t.Error("expected error with no snapshot")
	}
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(time.UTC)
	if err := s.Schedule("not a cron spec", func() {}); err == nil {
		t.Error("expected error for bad spec")
	}

	fired := make(chan struct{}, 1)
	if err := s.Schedule("@every 100ms", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
}
