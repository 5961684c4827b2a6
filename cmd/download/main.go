// Package main downloads daily OHLCV plus foreign net-buy series from
// the KIS OpenAPI for every symbol of the latest universe snapshot (or
// an explicit list) and saves them to the bar store. With -screen, the
// downloaded candidates are then ranked by volume times volatility and
// the survivors saved as a new universe snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"hsms-trader/internal/broker"
	"hsms-trader/internal/config"
	"hsms-trader/internal/domain"
	"hsms-trader/internal/screener"
	"hsms-trader/internal/storage"
	chstore "hsms-trader/internal/storage/clickhouse"
	"hsms-trader/internal/storage/csvstore"
	pgstore "hsms-trader/internal/storage/postgres"
)

func main() {
	settingsPath := flag.String("settings", "settings.yaml", "Settings YAML path")
	secretsPath := flag.String("secrets", "secrets.yaml", "Secrets YAML path")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (default: latest universe snapshot)")
	asOfStr := flag.String("as-of", "", "Universe snapshot date YYYY-MM-DD (default today)")
	fromStr := flag.String("from", "", "Chart start date YYYY-MM-DD (default 400 days back)")
	toStr := flag.String("to", "", "Chart end date YYYY-MM-DD (default today)")
	delay := flag.Duration("delay", 200*time.Millisecond, "Pause between API calls")
	screen := flag.Bool("screen", false, "Screen the downloaded candidates into a new universe snapshot")
	screenTop := flag.Int("screen-top", 0, "Screened snapshot size (default 30)")
	flag.Parse()

	logger := log.New(os.Stderr, "[download] ", log.LstdFlags)

	cfg, err := config.Load(*settingsPath, *secretsPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateBroker(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	now := time.Now()
	asOf := mustDate(logger, *asOfStr, now)
	to := mustDate(logger, *toStr, now)
	from := mustDate(logger, *fromStr, to.AddDate(0, 0, -400))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %v, cancelling", sig)
		cancel()
	}()

	kis, err := broker.NewKISBroker(broker.KISConfig{
		AppKey:             cfg.KoreaInvest.AppKey,
		AppSecret:          cfg.KoreaInvest.AppSecret,
		AccountNo:          cfg.KoreaInvest.AccountNo,
		AccountProductCode: cfg.KoreaInvest.AccountProductCode,
		BaseURL:            cfg.KoreaInvest.BaseURL,
		Virtual:            cfg.KoreaInvest.Virtual,
	})
	if err != nil {
		logger.Fatalf("broker: %v", err)
	}

	barStore, uniStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer cleanup()

	entries, err := resolveEntries(ctx, *symbolsFlag, uniStore, asOf)
	if err != nil {
		logger.Fatalf("symbols: %v", err)
	}
	logger.Printf("downloading %d symbols, %s to %s",
		len(entries), from.Format("2006-01-02"), to.Format("2006-01-02"))

	bar := progressbar.Default(int64(len(entries)), "download")
	var done, failed int
	for _, entry := range entries {
		symbol := entry.Ticker
		if ctx.Err() != nil {
			logger.Fatalf("cancelled after %d symbols", done)
		}
		done++

		bars, err := kis.FetchDailyBarsWithForeign(ctx, symbol, from, to)
		if err != nil {
			logger.Printf("%s: fetch: %v", symbol, err)
			failed++
			_ = bar.Add(1)
			continue
		}
		if len(bars) == 0 {
			logger.Printf("%s: no bars returned", symbol)
			failed++
			_ = bar.Add(1)
			continue
		}
		if err := barStore.SaveDailyBars(ctx, symbol, bars); err != nil {
			logger.Printf("%s: save: %v", symbol, err)
			failed++
		}
		_ = bar.Add(1)

		select {
		case <-time.After(*delay):
		case <-ctx.Done():
		}
	}
	_ = bar.Finish()

	logger.Printf("done: %d ok, %d failed", len(entries)-failed, failed)

	if *screen {
		if err := screenUniverse(ctx, logger, cfg, barStore, uniStore, entries, to, *screenTop); err != nil {
			logger.Fatalf("screen: %v", err)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// screenUniverse ranks the downloaded candidates and saves the top
// names as the universe snapshot for date to.
func screenUniverse(ctx context.Context, logger *log.Logger, cfg *config.Config,
	barStore storage.BarStore, uniStore storage.UniverseStore,
	entries []domain.UniverseEntry, to time.Time, topN int) error {

	if topN <= 0 {
		topN = cfg.Screener.TopN
	}
	scr, err := screener.New(screener.Options{
		BarStore:     barStore,
		LookbackDays: cfg.Screener.LookbackDays,
		TopN:         topN,
		MinPrice:     cfg.Screener.MinPrice,
		MinAvgVolume: cfg.Screener.MinAvgVolume,
	})
	if err != nil {
		return err
	}

	names := make(map[string]string, len(entries))
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Ticker
		names[e.Ticker] = e.Name
	}

	scores, err := scr.Run(ctx, symbols, to)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return fmt.Errorf("no candidates survived the screen")
	}

	snapshot := make([]domain.UniverseEntry, len(scores))
	for i, s := range scores {
		snapshot[i] = domain.UniverseEntry{Ticker: s.Symbol, Name: names[s.Symbol]}
	}
	if err := uniStore.SaveUniverse(ctx, to, snapshot); err != nil {
		return fmt.Errorf("save snapshot %s: %w", to.Format("2006-01-02"), err)
	}
	logger.Printf("screened %d candidates down to %d, snapshot saved for %s",
		len(symbols), len(snapshot), to.Format("2006-01-02"))
	return nil
}

// resolveEntries takes the explicit -symbols list when given, otherwise
// the latest universe snapshot.
func resolveEntries(ctx context.Context, symbolsFlag string, uniStore storage.UniverseStore, asOf time.Time) ([]domain.UniverseEntry, error) {
	if symbolsFlag != "" {
		var entries []domain.UniverseEntry
		for _, s := range strings.Split(symbolsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				entries = append(entries, domain.UniverseEntry{Ticker: s, Name: s})
			}
		}
		return entries, nil
	}

	entries, err := uniStore.LatestUniverse(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load universe as of %s: %w", asOf.Format("2006-01-02"), err)
	}
	return entries, nil
}

// openStores picks the bar and universe backends from config: ClickHouse
// and Postgres when DSNs are set, the CSV data directory otherwise.
func openStores(ctx context.Context, cfg *config.Config) (storage.BarStore, storage.UniverseStore, func(), error) {
	files := csvstore.NewStore(cfg.Storage.CSVDir)
	var barStore storage.BarStore = files
	var uniStore storage.UniverseStore = files
	cleanup := func() {}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		barStore = chstore.NewBarStore(conn)
		prev := cleanup
		cleanup = func() { conn.Close(); prev() }
	}
	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		uniStore = pgstore.NewUniverseStore(pool)
		prev := cleanup
		cleanup = func() { pool.Close(); prev() }
	}
	return barStore, uniStore, cleanup, nil
}

func mustDate(logger *log.Logger, s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		logger.Fatalf("invalid date %q: %v", s, err)
	}
	return t
}
