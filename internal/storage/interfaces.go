// Package storage defines the persistence contracts of the backtester:
// daily bar series, universe snapshots, and per-run result tables.
// Backends live in subpackages (csvstore for flat files, clickhouse
// for bars, postgres for universes and results, memory for tests).
package storage

import (
	"context"
	"time"

	"hsms-trader/internal/domain"
)

// BarStore provides access to daily bar series, one series per symbol.
type BarStore interface {
	// GetDailyBars retrieves bars for symbol within [from, to]
	// (inclusive), ordered by date ASC. A zero from or to leaves that
	// end of the range open. Returns ErrNotFound if the symbol has no
	// data at all.
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error)

	// SaveDailyBars upserts bars for symbol.
	SaveDailyBars(ctx context.Context, symbol string, bars []domain.Bar) error
}

// UniverseStore provides access to dated universe snapshots.
type UniverseStore interface {
	// GetUniverse retrieves the snapshot taken on asOf, ordered as
	// stored. Returns ErrNotFound if no snapshot exists for that date.
	GetUniverse(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error)

	// SaveUniverse stores a snapshot for asOf. Returns ErrDuplicateKey
	// if a snapshot for that date already exists.
	SaveUniverse(ctx context.Context, asOf time.Time, entries []domain.UniverseEntry) error

	// LatestUniverse retrieves the most recent snapshot on or before
	// asOf. Returns ErrNotFound if none exists.
	LatestUniverse(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error)
}

// ResultStore persists per-symbol backtest results keyed by run ID.
type ResultStore interface {
	// SaveResults stores the result table of one run. Returns
	// ErrDuplicateKey if the run ID already exists.
	SaveResults(ctx context.Context, runID string, results []domain.SymbolResult) error

	// GetResults retrieves a run's result table in stored order.
	// Returns ErrNotFound if the run is unknown.
	GetResults(ctx context.Context, runID string) ([]domain.SymbolResult, error)
}
