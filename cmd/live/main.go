// Package main runs the live trading loop: on schedule (or once with
// -once), evaluate end-of-day signals over the latest universe
// snapshot and route the resulting orders through the paper broker or
// the KIS account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/broker"
	"hsms-trader/internal/config"
	"hsms-trader/internal/live"
	"hsms-trader/internal/notify"
	"hsms-trader/internal/storage"
	chstore "hsms-trader/internal/storage/clickhouse"
	"hsms-trader/internal/storage/csvstore"
	pgstore "hsms-trader/internal/storage/postgres"
)

func main() {
	settingsPath := flag.String("settings", "settings.yaml", "Settings YAML path")
	secretsPath := flag.String("secrets", "secrets.yaml", "Secrets YAML path")
	paper := flag.Bool("paper", false, "Simulate orders in memory instead of calling KIS")
	once := flag.Bool("once", false, "Run one cycle now and exit")
	positionRatio := flag.Float64("position-ratio", 0, "Fraction of cash per buy (default 0.1)")
	verbose := flag.Bool("verbose", false, "Per-symbol progress on stderr")
	flag.Parse()

	logger := log.New(os.Stderr, "[live] ", log.LstdFlags)

	cfg, err := config.Load(*settingsPath, *secretsPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	if !*paper {
		if err := cfg.ValidateBroker(); err != nil {
			logger.Fatalf("config: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %v, shutting down", sig)
		cancel()
	}()

	barStore, uniStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer cleanup()

	var bk broker.Broker
	if *paper {
		bk = broker.NewPaperBroker(decimal.NewFromFloat(cfg.Trading.InitialCash))
		logger.Printf("paper broker, initial cash %.0f", cfg.Trading.InitialCash)
	} else {
		bk, err = broker.NewKISBroker(broker.KISConfig{
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
		logger.Printf("KIS broker, virtual=%v", cfg.KoreaInvest.Virtual)
	}

	notifier := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled)

	runner, err := live.NewRunner(live.Options{
		BarStore:        barStore,
		UniverseStore:   uniStore,
		Broker:          bk,
		Notifier:        notifier,
		StrategyVersion: cfg.Strategy.Version,
		StrategyConfig:  cfg.StrategyConfig(),
		PositionRatio:   *positionRatio,
		Verbose:         *verbose,
	})
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	cycle := func() {
		asOf := time.Now()
		plan, err := runner.Run(ctx, asOf)
		if err != nil {
			logger.Printf("cycle failed: %v", err)
			if sendErr := notifier.Send(notify.FormatError("-", "cycle", err.Error())); sendErr != nil {
				logger.Printf("notify: %v", sendErr)
			}
			return
		}
		logger.Printf("cycle done: %d sells, %d buys", len(plan.Sells), len(plan.Buys))
	}

	if *once {
		cycle()
		return
	}

	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		logger.Fatalf("load timezone: %v", err)
	}
	sched := live.NewScheduler(seoul)
	if err := sched.Schedule(cfg.Live.Cron, cycle); err != nil {
		logger.Fatalf("schedule: %v", err)
	}
	logger.Printf("scheduled %q (Asia/Seoul), strategy %s", cfg.Live.Cron, cfg.Strategy.Version)

	sched.Start()
	<-ctx.Done()
	sched.Stop()
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
