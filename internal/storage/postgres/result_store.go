package postgres

import (
	"context"
	"fmt"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

// Compile-time check that ResultStore implements storage.ResultStore.
var _ storage.ResultStore = (*ResultStore)(nil)

// NewResultStore creates a new PostgreSQL result store.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// SaveResults stores the result table of one run in a single
// transaction. The run row claims the run ID; a duplicate run ID maps
// to ErrDuplicateKey.
func (s *ResultStore) SaveResults(ctx context.Context, runID string, results []domain.SymbolResult) error {
	if runID == "" {
		return fmt.Errorf("empty run id: %w", storage.ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO backtest_runs (run_id) VALUES ($1)`, runID); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("run %s: %w", runID, storage.ErrDuplicateKey)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	query := `
		INSERT INTO backtest_results (
			run_id, seq, symbol, name,
			total_return, max_drawdown, win_rate, sharpe,
			final_equity, trade_count, status, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for i, r := range results {
		_, err := tx.Exec(ctx, query,
			runID, i, r.Symbol, r.Name,
			r.TotalReturn, r.MaxDrawdown, r.WinRate, r.Sharpe,
			r.FinalEquity, r.TradeCount, string(r.Status), r.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert result for %s: %w", r.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetResults retrieves a run's result table in stored order.
func (s *ResultStore) GetResults(ctx context.Context, runID string) ([]domain.SymbolResult, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM backtest_runs WHERE run_id = $1)`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}

	query := `
		SELECT symbol, name,
		       total_return, max_drawdown, win_rate, sharpe,
		       final_equity, trade_count, status, reason
		FROM backtest_results
		WHERE run_id = $1
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.SymbolResult
	for rows.Next() {
		var r domain.SymbolResult
		var status string
		err := rows.Scan(
			&r.Symbol, &r.Name,
			&r.TotalReturn, &r.MaxDrawdown, &r.WinRate, &r.Sharpe,
			&r.FinalEquity, &r.TradeCount, &status, &r.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.Status = domain.ResultStatus(status)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
