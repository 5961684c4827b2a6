package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

func TestUniverseStore_SaveAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewUniverseStore(pool)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	entries := []domain.UniverseEntry{
		{Ticker: "005930", Name: "삼성전자"},
		{Ticker: "000660", Name: "SK하이닉스"},
		{Ticker: "035720", Name: "카카오"},
	}

	_, err := store.GetUniverse(ctx, asOf)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SaveUniverse(ctx, asOf, entries))

	got, err := store.GetUniverse(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, entries, got, "stored order must survive")

	// Timestamps with a time-of-day hit the same DATE row.
	noon := asOf.Add(12 * time.Hour)
	got, err = store.GetUniverse(ctx, noon)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestUniverseStore_DuplicateSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewUniverseStore(pool)
	ctx := context.Background()
	asOf := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	entries := []domain.UniverseEntry{{Ticker: "005930", Name: "삼성전자"}}

	require.NoError(t, store.SaveUniverse(ctx, asOf, entries))
	err := store.SaveUniverse(ctx, asOf, entries)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestUniverseStore_EmptySnapshotRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewUniverseStore(pool)
	err := store.SaveUniverse(context.Background(), time.Now(), nil)
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUniverseStore_Latest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewUniverseStore(pool)
	ctx := context.Background()
	may := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveUniverse(ctx, may, []domain.UniverseEntry{{Ticker: "111111"}}))
	require.NoError(t, store.SaveUniverse(ctx, june, []domain.UniverseEntry{{Ticker: "222222"}}))

	got, err := store.LatestUniverse(ctx, june.AddDate(0, 0, 15))
	require.NoError(t, err)
	require.Equal(t, "222222", got[0].Ticker)

	got, err = store.LatestUniverse(ctx, may.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Equal(t, "111111", got[0].Ticker)

	// Snapshot dated exactly asOf counts.
	got, err = store.LatestUniverse(ctx, may)
	require.NoError(t, err)
	require.Equal(t, "111111", got[0].Ticker)

	_, err = store.LatestUniverse(ctx, may.AddDate(0, 0, -1))
	require.ErrorIs(t, err, storage.ErrNotFound)
}
