package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

func day(n int) time.Time {
	return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func seedBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		price := 10000 + float64(i)*50
		bars[i] = domain.Bar{
			Date:          day(i),
			Open:          price,
			High:          price + 100,
			Low:           price - 100,
			Close:         price + 50,
			Volume:        1000 + float64(i),
			ForeignNetBuy: float64(i - 5),
		}
	}
	return bars
}

func TestBarStore_SaveAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	bars := seedBars(10)

	require.NoError(t, store.SaveDailyBars(ctx, "005930", bars))

	got, err := store.GetDailyBars(ctx, "005930", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, bars, got)
}

func TestBarStore_RangeIsInclusive(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	require.NoError(t, store.SaveDailyBars(ctx, "005930", seedBars(10)))

	got, err := store.GetDailyBars(ctx, "005930", day(2), day(4))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, day(2), got[0].Date)
	require.Equal(t, day(4), got[2].Date)

	// Open-ended range on one side.
	got, err = store.GetDailyBars(ctx, "005930", day(8), time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestBarStore_UnknownSymbol(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	_, err := store.GetDailyBars(context.Background(), "999999", time.Time{}, time.Time{})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBarStore_EmptyRangeForKnownSymbol(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	require.NoError(t, store.SaveDailyBars(ctx, "005930", seedBars(3)))

	// Range beyond the data: not an error, just no bars.
	got, err := store.GetDailyBars(ctx, "005930", day(100), day(200))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBarStore_ResaveReplacesBars(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	bars := seedBars(3)
	require.NoError(t, store.SaveDailyBars(ctx, "005930", bars))

	// Revised close for the middle bar; FINAL must surface the newer row.
	revised := bars[1]
	revised.Close = 99999
	require.NoError(t, store.SaveDailyBars(ctx, "005930", []domain.Bar{revised}))

	got, err := store.GetDailyBars(ctx, "005930", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 99999.0, got[1].Close)
}

func TestBarStore_SymbolsAreIsolated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()
	require.NoError(t, store.SaveDailyBars(ctx, "005930", seedBars(5)))
	require.NoError(t, store.SaveDailyBars(ctx, "000660", seedBars(2)))

	got, err := store.GetDailyBars(ctx, "000660", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestBarStore_EmptySymbolRejected(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	err := store.SaveDailyBars(context.Background(), "", seedBars(1))
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
