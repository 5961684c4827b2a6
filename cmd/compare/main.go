// Package main backtests the latest universe snapshot under HSMS 1.0
// and HSMS 2.0 with identical costs and dates, then reports the
// per-symbol differences.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hsms-trader/internal/config"
	"hsms-trader/internal/regime"
	"hsms-trader/internal/reporting"
	"hsms-trader/internal/storage"
	chstore "hsms-trader/internal/storage/clickhouse"
	"hsms-trader/internal/storage/csvstore"
	pgstore "hsms-trader/internal/storage/postgres"
	"hsms-trader/internal/universe"
)

func main() {
	settingsPath := flag.String("settings", "settings.yaml", "Settings YAML path")
	secretsPath := flag.String("secrets", "secrets.yaml", "Secrets YAML path")
	asOfStr := flag.String("as-of", "", "Universe snapshot date YYYY-MM-DD (default today)")
	fromStr := flag.String("from", "", "Backtest start date YYYY-MM-DD")
	toStr := flag.String("to", "", "Backtest end date YYYY-MM-DD")
	topN := flag.Int("top", 10, "How many best/worst diffs to show")
	outputDir := flag.String("output-dir", "", "Write comparison.md and comparison.csv here")
	verbose := flag.Bool("verbose", false, "Per-symbol progress on stderr")
	flag.Parse()

	logger := log.New(os.Stderr, "[compare] ", log.LstdFlags)

	cfg, err := config.Load(*settingsPath, *secretsPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	asOf := mustDate(logger, *asOfStr, time.Now())
	from := mustDate(logger, *fromStr, time.Time{})
	to := mustDate(logger, *toStr, time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %v, cancelling", sig)
		cancel()
	}()

	barStore, uniStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer cleanup()

	entries, err := uniStore.LatestUniverse(ctx, asOf)
	if err != nil {
		logger.Fatalf("load universe as of %s: %v", asOf.Format("2006-01-02"), err)
	}
	logger.Printf("comparing %d symbols", len(entries))

	cmp, err := regime.CompareVersions(ctx, universe.Options{
		BarStore:       barStore,
		StrategyConfig: cfg.StrategyConfig(),
		Cost:           cfg.CostConfig(),
		InitialCash:    cfg.Trading.InitialCash,
		From:           from,
		To:             to,
		MinBars:        cfg.Trading.MinBars,
		Verbose:        *verbose,
	}, entries)
	if err != nil {
		logger.Fatalf("compare: %v", err)
	}

	fmt.Println(reporting.RenderComparisonMarkdown(cmp, *topN))

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0o755); err != nil {
			logger.Fatalf("output dir: %v", err)
		}
		writeFile(logger, filepath.Join(*outputDir, "comparison.md"), reporting.RenderComparisonMarkdown(cmp, *topN))
		writeFile(logger, filepath.Join(*outputDir, "comparison.csv"), reporting.RenderComparisonCSV(cmp.Common))
	}
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

func writeFile(logger *log.Logger, path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		logger.Fatalf("write %s: %v", path, err)
	}
	logger.Printf("wrote %s", path)
}
