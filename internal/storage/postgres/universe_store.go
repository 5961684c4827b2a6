package postgres

import (
	"context"
	"fmt"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// UniverseStore implements storage.UniverseStore using PostgreSQL.
type UniverseStore struct {
	pool *Pool
}

// Compile-time check that UniverseStore implements storage.UniverseStore.
var _ storage.UniverseStore = (*UniverseStore)(nil)

// NewUniverseStore creates a new PostgreSQL universe store.
func NewUniverseStore(pool *Pool) *UniverseStore {
	return &UniverseStore{pool: pool}
}

// GetUniverse retrieves the snapshot taken on asOf.
func (s *UniverseStore) GetUniverse(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	query := `
		SELECT ticker, name
		FROM universe_snapshots
		WHERE as_of = $1
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, dateOnly(asOf))
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var entries []domain.UniverseEntry
	for rows.Next() {
		var e domain.UniverseEntry
		if err := rows.Scan(&e.Ticker, &e.Name); err != nil {
			return nil, fmt.Errorf("scan universe entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universe entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("universe %s: %w", asOf.Format("2006-01-02"), storage.ErrNotFound)
	}
	return entries, nil
}

// SaveUniverse stores a snapshot for asOf in a single transaction.
func (s *UniverseStore) SaveUniverse(ctx context.Context, asOf time.Time, entries []domain.UniverseEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("empty snapshot: %w", storage.ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM universe_snapshots WHERE as_of = $1)`,
		dateOnly(asOf)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing snapshot: %w", err)
	}
	if exists {
		return fmt.Errorf("universe %s: %w", asOf.Format("2006-01-02"), storage.ErrDuplicateKey)
	}

	query := `
		INSERT INTO universe_snapshots (as_of, seq, ticker, name)
		VALUES ($1, $2, $3, $4)`
	for i, e := range entries {
		if _, err := tx.Exec(ctx, query, dateOnly(asOf), i, e.Ticker, e.Name); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("ticker %s: %w", e.Ticker, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert universe entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LatestUniverse retrieves the most recent snapshot on or before asOf.
func (s *UniverseStore) LatestUniverse(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	var latest time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT as_of FROM universe_snapshots WHERE as_of <= $1 ORDER BY as_of DESC LIMIT 1`,
		dateOnly(asOf)).Scan(&latest)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("no universe on or before %s: %w", asOf.Format("2006-01-02"), storage.ErrNotFound)
		}
		return nil, fmt.Errorf("query latest snapshot date: %w", err)
	}
	return s.GetUniverse(ctx, latest)
}

// dateOnly truncates a timestamp to its UTC calendar date, matching the
// DATE column type.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
