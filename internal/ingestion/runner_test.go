package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/memory"
)

const testRegion int32 = 10000002

type fakeSource struct {
	mu           sync.Mutex
	orders       []*OrderRecord
	ordersErr    error
	history      map[string][]*HistoryRecord
	historyCalls []string
}

func (f *fakeSource) AvailableHistoryDates(context.Context) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dates []time.Time
	for raw := range f.history {
		day, _ := time.Parse("2006-01-02", raw)
		dates = append(dates, day.UTC())
	}
	return dates, nil
}

func (f *fakeSource) FetchHistory(_ context.Context, day time.Time) ([]*HistoryRecord, *ParseStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format("2006-01-02")
	f.historyCalls = append(f.historyCalls, key)
	records := f.history[key]
	return records, &ParseStats{Parsed: len(records)}, nil
}

func (f *fakeSource) FetchOrders(context.Context) ([]*OrderRecord, *ParseStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ordersErr != nil {
		return nil, nil, f.ordersErr
	}
	return f.orders, &ParseStats{Parsed: len(f.orders)}, nil
}

func newTestRunner(source Source, snapshots *memory.SnapshotStore) *Runner {
	r := NewRunner(source, snapshots, Options{
		Regions:            []int32{testRegion},
		RetentionDays:      90,
		HistoryConcurrency: 2,
	})
	r.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRunFoldsOrdersIntoCurrentBucket(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	source := &fakeSource{
		orders: []*OrderRecord{
			{RegionID: testRegion, TypeID: 34, IsBuyOrder: true, Price: 4.5, VolumeRemain: 1000},
			{RegionID: testRegion, TypeID: 34, IsBuyOrder: true, Price: 4.7, VolumeRemain: 500},
			{RegionID: testRegion, TypeID: 34, IsBuyOrder: false, Price: 5.2, VolumeRemain: 2000},
			{RegionID: testRegion, TypeID: 34, IsBuyOrder: false, Price: 5.0, VolumeRemain: 800},
			// Foreign region, must be ignored.
			{RegionID: 10000043, TypeID: 34, IsBuyOrder: true, Price: 9.9, VolumeRemain: 1},
		},
	}
	runner := newTestRunner(source, snapshots)

	stats, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.RowsWritten != 1 {
		t.Fatalf("RowsWritten = %d, want 1", stats.RowsWritten)
	}

	latest, err := snapshots.GetLatest(ctx, testRegion)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("got %d buckets, want 1", len(latest))
	}

	b := latest[0]
	if b.BuyPrice != 4.7 {
		t.Fatalf("BuyPrice = %v, want best bid 4.7", b.BuyPrice)
	}
	if b.SellPrice != 5.0 {
		t.Fatalf("SellPrice = %v, want best ask 5.0", b.SellPrice)
	}
	if b.Volume != 4300 || b.OrderCount != 4 {
		t.Fatalf("volume/orders = (%d, %d), want (4300, 4)", b.Volume, b.OrderCount)
	}
	want := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !b.Date.Equal(want) {
		t.Fatalf("bucket date = %v, want %v", b.Date, want)
	}
}

func TestRunSkipsUnchangedOrders(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	source := &fakeSource{ordersErr: ErrNotModified}
	runner := newTestRunner(source, snapshots)

	stats, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed on unchanged orders: %v", err)
	}
	if stats.RowsWritten != 0 {
		t.Fatalf("RowsWritten = %d, want 0", stats.RowsWritten)
	}
}

func TestRunBackfillsMissingHistoryDays(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()

	hist := func(day string) []*HistoryRecord {
		d, _ := time.Parse("2006-01-02", day)
		return []*HistoryRecord{{
			Date: d.UTC(), RegionID: testRegion, TypeID: 34,
			Average: 5.0, Highest: 5.5, Lowest: 4.5, Volume: 100, OrderCount: 10,
		}}
	}
	source := &fakeSource{
		history: map[string][]*HistoryRecord{
			"2025-06-12": hist("2025-06-12"),
			"2025-06-13": hist("2025-06-13"),
			"2025-06-14": hist("2025-06-14"),
			// Today's date must not be fetched as history.
			"2025-06-15": hist("2025-06-15"),
		},
	}
	runner := newTestRunner(source, snapshots)

	// Pre-seed the store so only days after 2025-06-12 are missing.
	_, err := snapshots.Upsert(ctx, []*domain.MarketSnapshot{{
		TypeID: 34, RegionID: testRegion,
		Date: time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), SellPrice: 5,
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.HistoryDays != 2 {
		t.Fatalf("HistoryDays = %d, want 2", stats.HistoryDays)
	}

	source.mu.Lock()
	calls := append([]string(nil), source.historyCalls...)
	source.mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("history fetched for %v, want exactly the 2 missing days", calls)
	}
	for _, day := range calls {
		if day != "2025-06-13" && day != "2025-06-14" {
			t.Fatalf("unexpected history fetch for %s", day)
		}
	}

	history, err := snapshots.GetHistory(ctx, 34, testRegion, time.Time{})
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d history buckets, want 3", len(history))
	}
	if history[1].BuyPrice != 4.5 || history[1].SellPrice != 5.5 || history[1].AveragePrice != 5.0 {
		t.Fatalf("history bucket mapping wrong: %+v", history[1])
	}
}

func TestRunRemovesExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	source := &fakeSource{}
	runner := newTestRunner(source, snapshots)

	old := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	_, err := snapshots.Upsert(ctx, []*domain.MarketSnapshot{
		{TypeID: 34, RegionID: testRegion, Date: old, SellPrice: 1},
		{TypeID: 34, RegionID: testRegion, Date: recent, SellPrice: 2},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := runner.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	history, err := snapshots.GetHistory(ctx, 34, testRegion, time.Time{})
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 1 || !history[0].Date.Equal(recent) {
		t.Fatalf("retention left %d buckets, want only the recent one", len(history))
	}
}
