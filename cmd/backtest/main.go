// Package main runs the universe backtest: every symbol of the latest
// universe snapshot through the engine, ranked results to stdout and
// optionally to report files and the result store.
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

	"github.com/schollz/progressbar/v3"

	"hsms-trader/internal/backtest"
	"hsms-trader/internal/config"
	"hsms-trader/internal/domain"
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
	strategyVersion := flag.String("strategy", "", "Strategy version override (hsms-1.0, hsms-2.0)")
	sidewaysFilter := flag.Bool("sideways-filter", false, "Dampen buys while the benchmark is sideways")
	outputDir := flag.String("output-dir", "", "Write report.md and results.csv here")
	runID := flag.String("run-id", "", "Persist results under this run ID (requires postgres)")
	verbose := flag.Bool("verbose", false, "Per-symbol progress on stderr")
	flag.Parse()

	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	cfg, err := config.Load(*settingsPath, *secretsPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *strategyVersion != "" {
		cfg.Strategy.Version = *strategyVersion
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
	logger.Printf("universe: %d symbols, strategy %s", len(entries), cfg.Strategy.Version)

	var regimes map[time.Time]domain.Regime
	if *sidewaysFilter {
		regimes, err = buildRegimes(ctx, cfg, barStore, to)
		if err != nil {
			logger.Fatalf("regime table: %v", err)
		}
	}

	bar := progressbar.Default(int64(len(entries)), "backtest")
	runner, err := universe.NewRunner(universe.Options{
		BarStore:        barStore,
		StrategyVersion: cfg.Strategy.Version,
		StrategyConfig:  cfg.StrategyConfig(),
		Cost:            cfg.CostConfig(),
		InitialCash:     cfg.Trading.InitialCash,
		From:            from,
		To:              to,
		MinBars:         cfg.Trading.MinBars,
		Regimes:         regimes,
		Dampening: backtest.Dampening{
			MinVolumeRatio: cfg.Regime.MinVolumeRatio,
			MinAbsReturnMA: cfg.Regime.MinAbsReturnMA,
		},
		Progress: func(done, total int, _ domain.SymbolResult) { _ = bar.Add(1) },
		Verbose:  *verbose,
	})
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	results, err := runner.Run(ctx, entries)
	if err != nil {
		logger.Fatalf("run: %v", err)
	}
	_ = bar.Finish()

	report := &reporting.ResultReport{
		GeneratedAt:     time.Now(),
		StrategyVersion: cfg.Strategy.Version,
		UniverseDate:    asOf.Format("2006-01-02"),
		Results:         results,
	}
	fmt.Println(reporting.RenderResultsMarkdown(report))

	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0o755); err != nil {
			logger.Fatalf("output dir: %v", err)
		}
		writeFile(logger, filepath.Join(*outputDir, "report.md"), reporting.RenderResultsMarkdown(report))
		writeFile(logger, filepath.Join(*outputDir, "results.csv"), reporting.RenderResultsCSV(results))
	}

	if *runID != "" {
		if cfg.Storage.PostgresDSN == "" {
			logger.Fatal("--run-id requires storage.postgres_dsn")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := pgstore.NewResultStore(pool).SaveResults(ctx, *runID, results); err != nil {
			logger.Fatalf("persist run %s: %v", *runID, err)
		}
		logger.Printf("persisted %d rows under run %s", len(results), *runID)
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

// buildRegimes labels the benchmark series and returns a date-keyed map
// for the engine's sideways buy filter.
func buildRegimes(ctx context.Context, cfg *config.Config, barStore storage.BarStore, to time.Time) (map[time.Time]domain.Regime, error) {
	bars, err := barStore.GetDailyBars(ctx, cfg.Regime.BenchmarkSymbol, time.Time{}, to)
	if err != nil {
		return nil, fmt.Errorf("benchmark %s: %w", cfg.Regime.BenchmarkSymbol, err)
	}
	table := regime.BuildTable(bars, regime.LabelerConfig{
		BenchmarkSymbol: cfg.Regime.BenchmarkSymbol,
		MAWindow:        cfg.Regime.MAWindow,
		SlopeWindow:     cfg.Regime.SlopeDays,
	})
	regimes := make(map[time.Time]domain.Regime, len(table))
	for _, p := range table {
		regimes[p.Date] = p.Label
	}
	return regimes, nil
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
