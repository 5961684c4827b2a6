package clickhouse

import (
	"context"
	"fmt"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// NewBarStore creates a new ClickHouse bar store.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// GetDailyBars retrieves bars for symbol within [from, to], ordered by
// date ASC. FINAL collapses the ReplacingMergeTree so re-saved bars
// read back deduplicated.
func (s *BarStore) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	query := `
		SELECT date, open, high, low, close, volume, foreign_net_buy
		FROM daily_bars FINAL
		WHERE symbol = ?`
	args := []any{symbol}

	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dateOnly(from))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, dateOnly(to))
	}
	query += ` ORDER BY date ASC`

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var date time.Time
		err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.ForeignNetBuy)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		b.Date = dateOnly(date)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	if len(bars) == 0 {
		// Distinguish "no data in range" from "unknown symbol".
		exists, err := s.symbolExists(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("symbol %s: %w", symbol, storage.ErrNotFound)
		}
	}
	return bars, nil
}

// SaveDailyBars upserts bars for symbol in one batch. Rows sharing a
// (symbol, date) key replace older versions on merge.
func (s *BarStore) SaveDailyBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol: %w", storage.ErrInvalidInput)
	}
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_bars (
			symbol, date, open, high, low, close, volume, foreign_net_buy
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			symbol, dateOnly(b.Date),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.ForeignNetBuy,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *BarStore) symbolExists(ctx context.Context, symbol string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM daily_bars WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check symbol: %w", err)
	}
	return count > 0, nil
}

// dateOnly truncates a timestamp to its UTC calendar date, matching the
// Date column type.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
