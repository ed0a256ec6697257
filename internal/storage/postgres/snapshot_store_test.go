package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSnapshotStore_UpsertAndGetHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	rows := []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), BuyPrice: 4.5, SellPrice: 5.0, AveragePrice: 4.8, Volume: 1000, OrderCount: 10},
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 2), BuyPrice: 4.6, SellPrice: 5.1, AveragePrice: 4.9, Volume: 1100, OrderCount: 12},
	}
	written, err := store.Upsert(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	history, err := store.GetHistory(ctx, 34, 10000002, day(2025, 5, 1))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Date.Before(history[1].Date), "history not ascending")
	assert.Equal(t, 4.5, history[0].BuyPrice)
	assert.Equal(t, int64(1000), history[0].Volume)
}

func TestSnapshotStore_UpsertReplacesBucket(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	first := &domain.MarketSnapshot{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), SellPrice: 5.0}
	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{first})
	require.NoError(t, err)

	second := &domain.MarketSnapshot{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), SellPrice: 6.0, Volume: 42}
	_, err = store.Upsert(ctx, []*domain.MarketSnapshot{second})
	require.NoError(t, err)

	history, err := store.GetHistory(ctx, 34, 10000002, day(2025, 5, 1))
	require.NoError(t, err)
	require.Len(t, history, 1, "re-ingested bucket duplicated")
	assert.Equal(t, 6.0, history[0].SellPrice)
	assert.Equal(t, int64(42), history[0].Volume)
}

func TestSnapshotStore_GetLatestPicksNewestPerItem(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), SellPrice: 5.0},
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 3), SellPrice: 5.5},
		{TypeID: 35, RegionID: 10000002, Date: day(2025, 6, 2), SellPrice: 9.0},
		// Foreign region must not leak in.
		{TypeID: 36, RegionID: 10000043, Date: day(2025, 6, 3), SellPrice: 1.0},
	})
	require.NoError(t, err)

	latest, err := store.GetLatest(ctx, 10000002)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int32(34), latest[0].TypeID)
	assert.Equal(t, 5.5, latest[0].SellPrice)
	assert.Equal(t, int32(35), latest[1].TypeID)
}

func TestSnapshotStore_LatestDate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.LatestDate(ctx, 10000002)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), SellPrice: 5.0},
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 5), SellPrice: 5.0},
	})
	require.NoError(t, err)

	latest, err := store.LatestDate(ctx, 10000002)
	require.NoError(t, err)
	assert.True(t, latest.Equal(day(2025, 6, 5)), "latest = %v", latest)
}

func TestSnapshotStore_DeleteOlderThan(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 3, 1), SellPrice: 5.0},
		{TypeID: 34, RegionID: 10000002, Date: day(2025, 6, 1), SellPrice: 5.0},
	})
	require.NoError(t, err)

	removed, err := store.DeleteOlderThan(ctx, day(2025, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	history, err := store.GetHistory(ctx, 34, 10000002, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Date.Equal(day(2025, 6, 1)))
}
