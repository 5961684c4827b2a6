// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and by runs that load everything from
// flat files up front.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Bar // keyed by symbol, kept sorted by date
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{data: make(map[string][]domain.Bar)}
}

// GetDailyBars retrieves bars for symbol within [from, to], ordered by
// date ASC. Returns ErrNotFound if the symbol has no data.
func (s *BarStore) GetDailyBars(_ context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, ok := s.data[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}

	result := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		result = append(result, b)
	}
	return result, nil
}

// SaveDailyBars upserts bars for symbol, replacing any existing bar on
// the same date.
func (s *BarStore) SaveDailyBars(_ context.Context, symbol string, bars []domain.Bar) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[time.Time]domain.Bar, len(s.data[symbol])+len(bars))
	for _, b := range s.data[symbol] {
		byDate[b.Date] = b
	}
	for _, b := range bars {
		byDate[b.Date] = b
	}

	merged := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	s.data[symbol] = merged
	return nil
}
