package memory

import (
	"context"
	"sync"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string][]domain.SymbolResult // keyed by run ID
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{data: make(map[string][]domain.SymbolResult)}
}

// SaveResults stores the result table of one run.
func (s *ResultStore) SaveResults(_ context.Context, runID string, results []domain.SymbolResult) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}
	stored := make([]domain.SymbolResult, len(results))
	copy(stored, results)
	s.data[runID] = stored
	return nil
}

// GetResults retrieves a run's result table in stored order.
func (s *ResultStore) GetResults(_ context.Context, runID string) ([]domain.SymbolResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]domain.SymbolResult, len(results))
	copy(out, results)
	return out, nil
}
