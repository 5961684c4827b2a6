package memory

import (
	"context"
	"sync"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// Compile-time interface check.
var _ storage.UniverseStore = (*UniverseStore)(nil)

// UniverseStore is an in-memory implementation of storage.UniverseStore.
type UniverseStore struct {
	mu   sync.RWMutex
	data map[time.Time][]domain.UniverseEntry // keyed by snapshot date
}

// NewUniverseStore creates a new in-memory universe store.
func NewUniverseStore() *UniverseStore {
	return &UniverseStore{data: make(map[time.Time][]domain.UniverseEntry)}
}

// GetUniverse retrieves the snapshot taken exactly on asOf.
func (s *UniverseStore) GetUniverse(_ context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.data[dateKey(asOf)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]domain.UniverseEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// SaveUniverse stores a snapshot for asOf.
func (s *UniverseStore) SaveUniverse(_ context.Context, asOf time.Time, entries []domain.UniverseEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(asOf)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	stored := make([]domain.UniverseEntry, len(entries))
	copy(stored, entries)
	s.data[key] = stored
	return nil
}

// LatestUniverse retrieves the most recent snapshot on or before asOf.
func (s *UniverseStore) LatestUniverse(_ context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := dateKey(asOf)
	var best time.Time
	found := false
	for d := range s.data {
		if d.After(limit) {
			continue
		}
		if !found || d.After(best) {
			best = d
			found = true
		}
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	entries := s.data[best]
	out := make([]domain.UniverseEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// dateKey truncates a timestamp to its UTC calendar date so lookups do
// not depend on the time-of-day a snapshot was taken.
func dateKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
