package analysis

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/memory"
)

const testRegion int32 = 10000002

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func newTestAnalyzer(snapshots *memory.SnapshotStore, results *memory.AnalysisStore) *Analyzer {
	a := NewAnalyzer(snapshots, results, Options{
		Fees:           domain.FeeSchedule{BrokerFee: 0.03, SalesTax: 0.05},
		Weights:        domain.ScoreWeights{Profit: 0.4, ROI: 0.3, Volume: 0.3},
		LookbackDays:   30,
		MinDataPoints:  5,
		TrendThreshold: 0.01,
	})
	a.now = fixedNow
	return a
}

func seedSnapshot(t *testing.T, store *memory.SnapshotStore, typeID int32, daysAgo int, buy, sell float64, volume int64) {
	t.Helper()
	date := domain.BucketDate(fixedNow()).AddDate(0, 0, -daysAgo)
	_, err := store.Upsert(context.Background(), []*domain.MarketSnapshot{{
		TypeID:    typeID,
		RegionID:  testRegion,
		Date:      date,
		BuyPrice:  buy,
		SellPrice: sell,
		Volume:    volume,
	}})
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func TestAnalyzeRegionProfitFormula(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	seedSnapshot(t, snapshots, 34, 0, 100, 120, 1000)

	if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}

	got, err := results.GetLatestByType(ctx, 34, testRegion)
	if err != nil {
		t.Fatalf("GetLatestByType failed: %v", err)
	}

	// 120 - 100 - 120*0.03 - 120*0.05 = 10.4
	if math.Abs(got.ProfitPerUnit-10.4) > 1e-9 {
		t.Fatalf("ProfitPerUnit = %v, want 10.4", got.ProfitPerUnit)
	}
	if got.ROIPercent == nil {
		t.Fatal("ROIPercent is nil for positive buy price")
	}
	if math.Abs(*got.ROIPercent-10.4) > 1e-9 {
		t.Fatalf("ROIPercent = %v, want 10.4", *got.ROIPercent)
	}
}

func TestAnalyzeRegionNilROIOnZeroBuy(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	seedSnapshot(t, snapshots, 35, 0, 0, 50, 100)

	if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}

	got, err := results.GetLatestByType(ctx, 35, testRegion)
	if err != nil {
		t.Fatalf("GetLatestByType failed: %v", err)
	}
	if got.ROIPercent != nil {
		t.Fatalf("ROIPercent = %v, want nil for zero buy price", *got.ROIPercent)
	}
}

func TestAnalyzeRegionNilCorrelationOnThinHistory(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	// 4 days of history, below the 5-point minimum.
	for d := 0; d < 4; d++ {
		seedSnapshot(t, snapshots, 36, d, 90+float64(d), 100+float64(d), int64(500+d))
	}

	if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}

	got, err := results.GetLatestByType(ctx, 36, testRegion)
	if err != nil {
		t.Fatalf("GetLatestByType failed: %v", err)
	}
	if got.PriceVolumeCorrelation != nil {
		t.Fatalf("correlation = %v, want nil below minimum history", *got.PriceVolumeCorrelation)
	}
}

func TestAnalyzeRegionSkipsEmptyItems(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	seedSnapshot(t, snapshots, 34, 0, 100, 120, 1000)
	seedSnapshot(t, snapshots, 99, 0, 0, 0, 0)

	stats, err := analyzer.AnalyzeRegion(ctx, testRegion)
	if err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}
	if stats.ItemsAnalyzed != 1 {
		t.Fatalf("ItemsAnalyzed = %d, want 1", stats.ItemsAnalyzed)
	}
	if stats.ItemsSkipped != 1 {
		t.Fatalf("ItemsSkipped = %d, want 1", stats.ItemsSkipped)
	}
}

func TestAnalyzeRegionRankingDeterministic(t *testing.T) {
	ctx := context.Background()

	var firstOrder []int32
	for pass := 0; pass < 3; pass++ {
		snapshots := memory.NewSnapshotStore()
		results := memory.NewAnalysisStore()
		analyzer := newTestAnalyzer(snapshots, results)

		seedSnapshot(t, snapshots, 34, 0, 100, 120, 1000)
		seedSnapshot(t, snapshots, 35, 0, 50, 80, 2000)
		seedSnapshot(t, snapshots, 36, 0, 200, 210, 500)

		if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
			t.Fatalf("AnalyzeRegion failed: %v", err)
		}

		ranked, err := results.GetLatest(ctx, testRegion)
		if err != nil {
			t.Fatalf("GetLatest failed: %v", err)
		}
		order := make([]int32, len(ranked))
		for i, r := range ranked {
			order[i] = r.TypeID
		}

		if pass == 0 {
			firstOrder = order
			continue
		}
		for i := range order {
			if order[i] != firstOrder[i] {
				t.Fatalf("pass %d order %v differs from first pass %v", pass, order, firstOrder)
			}
		}
	}
}

func TestAnalyzeRegionScoresWithinUnitRange(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	seedSnapshot(t, snapshots, 34, 0, 100, 120, 1000)
	seedSnapshot(t, snapshots, 35, 0, 50, 80, 2000)

	if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}

	ranked, err := results.GetLatest(ctx, testRegion)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	for _, r := range ranked {
		if r.ProfitScore < 0 || r.ProfitScore > 1 {
			t.Fatalf("ProfitScore %v outside [0, 1] for type %d", r.ProfitScore, r.TypeID)
		}
	}
}

func TestAnalyzeRegionSharedAsOf(t *testing.T) {
	ctx := context.Background()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewAnalysisStore()
	analyzer := newTestAnalyzer(snapshots, results)

	seedSnapshot(t, snapshots, 34, 0, 100, 120, 1000)
	seedSnapshot(t, snapshots, 35, 0, 50, 80, 2000)

	if _, err := analyzer.AnalyzeRegion(ctx, testRegion); err != nil {
		t.Fatalf("AnalyzeRegion failed: %v", err)
	}

	ranked, err := results.GetLatest(ctx, testRegion)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	if !ranked[0].AsOf.Equal(ranked[1].AsOf) {
		t.Fatalf("as-of differs within a pass: %v vs %v", ranked[0].AsOf, ranked[1].AsOf)
	}
}
