package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// Options configures an Analyzer.
type Options struct {
	Fees    domain.FeeSchedule
	Weights domain.ScoreWeights
	// LookbackDays bounds the history window feeding correlation,
	// volatility and trend.
	LookbackDays int
	// MinDataPoints is the minimum history length for correlation.
	MinDataPoints int
	// TrendThreshold separates a real slope from noise, as a fraction
	// of mean price per day.
	TrendThreshold float64
}

// Stats summarizes one analysis pass.
type Stats struct {
	ItemsAnalyzed int
	ItemsSkipped  int
}

// Analyzer computes profitability and trend metrics for every item
// with a current snapshot in a region.
type Analyzer struct {
	snapshots storage.SnapshotStore
	results   storage.AnalysisStore
	opts      Options

	now func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(snapshots storage.SnapshotStore, results storage.AnalysisStore, opts Options) *Analyzer {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	if opts.MinDataPoints < 2 {
		opts.MinDataPoints = 5
	}
	if opts.TrendThreshold <= 0 {
		opts.TrendThreshold = 0.01
	}
	return &Analyzer{
		snapshots: snapshots,
		results:   results,
		opts:      opts,
		now:       time.Now,
	}
}

// AnalyzeRegion runs one analysis pass over a region. All rows of the
// pass share a single as-of timestamp.
func (a *Analyzer) AnalyzeRegion(ctx context.Context, regionID int32) (*Stats, error) {
	latest, err := a.snapshots.GetLatest(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots for region %d: %w", regionID, err)
	}

	stats := &Stats{}
	asOf := a.now().UTC()
	since := domain.BucketDate(asOf).AddDate(0, 0, -a.opts.LookbackDays)

	var results []*domain.AnalysisResult
	for _, snap := range latest {
		if snap.BuyPrice <= 0 && snap.SellPrice <= 0 {
			stats.ItemsSkipped++
			continue
		}

		history, err := a.snapshots.GetHistory(ctx, snap.TypeID, regionID, since)
		if err != nil {
			return stats, fmt.Errorf("history for type %d: %w", snap.TypeID, err)
		}

		results = append(results, a.analyzeItem(snap, history, asOf))
	}

	a.scoreAndRank(results)

	if err := a.results.InsertBatch(ctx, results); err != nil {
		return stats, fmt.Errorf("insert analysis batch: %w", err)
	}
	stats.ItemsAnalyzed = len(results)
	logger.Info("analyzed region %d: %d items, %d skipped", regionID, stats.ItemsAnalyzed, stats.ItemsSkipped)
	return stats, nil
}

// analyzeItem derives the per-item metrics. The composite score is
// filled in later because it depends on the whole pass.
func (a *Analyzer) analyzeItem(snap *domain.MarketSnapshot, history []*domain.MarketSnapshot, asOf time.Time) *domain.AnalysisResult {
	buy, sell := snap.BuyPrice, snap.SellPrice
	profit := sell - buy - sell*a.opts.Fees.BrokerFee - sell*a.opts.Fees.SalesTax

	result := &domain.AnalysisResult{
		TypeID:         snap.TypeID,
		RegionID:       snap.RegionID,
		AsOf:           asOf,
		BuyPrice:       buy,
		SellPrice:      sell,
		ProfitPerUnit:  profit,
		TrendDirection: domain.TrendFlat,
	}

	if buy > 0 {
		roi := profit / buy * 100
		result.ROIPercent = &roi
	}

	var prices, volumes []float64
	for _, h := range history {
		if h.SellPrice <= 0 {
			continue
		}
		prices = append(prices, h.SellPrice)
		volumes = append(volumes, float64(h.Volume))
	}

	result.PriceVolumeCorrelation = pearson(prices, volumes, a.opts.MinDataPoints)
	result.Volatility = coefficientOfVariation(prices)
	result.AvgDailyVolume = mean(volumes)
	if len(prices) >= 2 {
		result.TrendDirection = classifyTrend(prices, a.opts.TrendThreshold)
	}
	return result
}

// scoreAndRank fills in composite profit scores from rank-normalized
// components and orders the batch by rank.
func (a *Analyzer) scoreAndRank(results []*domain.AnalysisResult) {
	if len(results) == 0 {
		return
	}

	profits := make([]float64, len(results))
	rois := make([]float64, len(results))
	volumes := make([]float64, len(results))
	for i, r := range results {
		profits[i] = r.ProfitPerUnit
		if r.ROIPercent != nil {
			rois[i] = *r.ROIPercent
		}
		volumes[i] = r.AvgDailyVolume
	}

	np := rankNormalize(profits)
	nr := rankNormalize(rois)
	nv := rankNormalize(volumes)

	w := a.opts.Weights
	total := w.Profit + w.ROI + w.Volume
	if total == 0 {
		total = 1
	}
	for i, r := range results {
		r.ProfitScore = (w.Profit*np[i] + w.ROI*nr[i] + w.Volume*nv[i]) / total
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Less(results[j]) })
}
