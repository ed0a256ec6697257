package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestSnapshotStoreUpsertReplacesBucket(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 1, Date: day(1), SellPrice: 5},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	_, err = store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 1, Date: day(1), SellPrice: 6},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	history, err := store.GetHistory(ctx, 34, 1, time.Time{})
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].SellPrice != 6 {
		t.Fatalf("history = %+v, want single replaced bucket", history)
	}
}

func TestSnapshotStoreGetLatest(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 1, Date: day(1), SellPrice: 5},
		{TypeID: 34, RegionID: 1, Date: day(3), SellPrice: 7},
		{TypeID: 35, RegionID: 1, Date: day(2), SellPrice: 9},
		{TypeID: 36, RegionID: 2, Date: day(3), SellPrice: 1},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	latest, err := store.GetLatest(ctx, 1)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d items, want 2", len(latest))
	}
	if latest[0].TypeID != 34 || latest[0].SellPrice != 7 {
		t.Fatalf("latest[0] = %+v", latest[0])
	}
}

func TestSnapshotStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 1, Date: day(1), SellPrice: 5},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	first, _ := store.GetLatest(ctx, 1)
	first[0].SellPrice = 999

	second, _ := store.GetLatest(ctx, 1)
	if second[0].SellPrice != 5 {
		t.Fatal("store handed out a shared reference")
	}
}

func TestSnapshotStoreLatestDateAndRetention(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	if _, err := store.LatestDate(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LatestDate on empty store = %v, want ErrNotFound", err)
	}

	_, err := store.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: 1, Date: day(1), SellPrice: 5},
		{TypeID: 34, RegionID: 1, Date: day(10), SellPrice: 5},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	latest, err := store.LatestDate(ctx, 1)
	if err != nil {
		t.Fatalf("LatestDate failed: %v", err)
	}
	if !latest.Equal(day(10)) {
		t.Fatalf("LatestDate = %v, want %v", latest, day(10))
	}

	removed, err := store.DeleteOlderThan(ctx, day(5))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestSnapshotStoreRejectsInvalidRows(t *testing.T) {
	_, err := NewSnapshotStore().Upsert(context.Background(), []*domain.MarketSnapshot{
		{TypeID: 0, RegionID: 1, Date: day(1)},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}
