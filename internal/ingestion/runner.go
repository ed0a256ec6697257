package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// Stats summarizes one ingestion pass.
type Stats struct {
	RowsWritten int
	RowsDropped int
	HistoryDays int
}

// Options configures a Runner.
type Options struct {
	// Regions limits ingestion to the configured market regions.
	Regions []int32
	// RetentionDays bounds how far back history is kept and fetched.
	RetentionDays int
	// HistoryConcurrency bounds parallel daily history downloads.
	HistoryConcurrency int
}

// Runner drives one ingestion pass: live orders into the current-day
// bucket, daily history exports into past buckets, then retention
// cleanup.
type Runner struct {
	source    Source
	snapshots storage.SnapshotStore
	opts      Options
	regions   map[int32]struct{}

	now func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(source Source, snapshots storage.SnapshotStore, opts Options) *Runner {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if opts.HistoryConcurrency <= 0 {
		opts.HistoryConcurrency = 4
	}
	regions := make(map[int32]struct{}, len(opts.Regions))
	for _, id := range opts.Regions {
		regions[id] = struct{}{}
	}
	return &Runner{
		source:    source,
		snapshots: snapshots,
		opts:      opts,
		regions:   regions,
		now:       time.Now,
	}
}

// Run executes one full ingestion pass.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	now := r.now().UTC()
	today := domain.BucketDate(now)

	if err := r.ingestOrders(ctx, today, stats); err != nil {
		return stats, err
	}
	if err := r.ingestHistory(ctx, today, stats); err != nil {
		return stats, err
	}

	cutoff := today.AddDate(0, 0, -r.opts.RetentionDays)
	removed, err := r.snapshots.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("retention cleanup: %w", err)
	}
	if removed > 0 {
		logger.Info("retention removed %d snapshot rows before %s", removed, cutoff.Format("2006-01-02"))
	}
	return stats, nil
}

// ingestOrders folds the live order snapshot into today's bucket: best
// bid and ask per item, open volume, order count.
func (r *Runner) ingestOrders(ctx context.Context, today time.Time, stats *Stats) error {
	records, parseStats, err := r.source.FetchOrders(ctx)
	if errors.Is(err, ErrNotModified) {
		logger.Info("order snapshot unchanged, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch orders: %w", err)
	}
	stats.RowsDropped += parseStats.Dropped

	type bucketKey struct {
		typeID   int32
		regionID int32
	}
	buckets := make(map[bucketKey]*domain.MarketSnapshot)
	for _, rec := range records {
		if _, ok := r.regions[rec.RegionID]; !ok {
			continue
		}
		key := bucketKey{rec.TypeID, rec.RegionID}
		b, ok := buckets[key]
		if !ok {
			b = &domain.MarketSnapshot{
				TypeID:   rec.TypeID,
				RegionID: rec.RegionID,
				Date:     today,
			}
			buckets[key] = b
		}
		if rec.IsBuyOrder {
			if rec.Price > b.BuyPrice {
				b.BuyPrice = rec.Price
			}
		} else {
			if b.SellPrice == 0 || rec.Price < b.SellPrice {
				b.SellPrice = rec.Price
			}
		}
		b.Volume += rec.VolumeRemain
		b.OrderCount++
	}

	rows := make([]*domain.MarketSnapshot, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, b)
	}
	written, err := r.snapshots.Upsert(ctx, rows)
	stats.RowsWritten += written
	if err != nil {
		return fmt.Errorf("%w: orders upsert wrote %d of %d: %v", ErrPartialWrite, written, len(rows), err)
	}
	logger.Info("ingested order snapshot: %d items across %d regions", len(rows), len(r.regions))
	return nil
}

// ingestHistory downloads daily history exports for every day missing
// from the store, bounded by the retention window.
func (r *Runner) ingestHistory(ctx context.Context, today time.Time, stats *Stats) error {
	start := today.AddDate(0, 0, -r.opts.RetentionDays)
	latest, err := r.snapshots.LatestDate(ctx, r.opts.Regions[0])
	switch {
	case err == nil:
		if next := latest.AddDate(0, 0, 1); next.After(start) {
			start = next
		}
	case errors.Is(err, storage.ErrNotFound):
		// Empty store, backfill the full retention window.
	default:
		return fmt.Errorf("latest snapshot date: %w", err)
	}

	available, err := r.source.AvailableHistoryDates(ctx)
	if err != nil {
		return fmt.Errorf("list history dates: %w", err)
	}

	var missing []time.Time
	for _, day := range available {
		if !day.Before(start) && day.Before(today) {
			missing = append(missing, day)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	logger.Info("fetching %d days of market history from %s", len(missing), missing[0].Format("2006-01-02"))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.HistoryConcurrency)
	for _, day := range missing {
		day := day
		g.Go(func() error {
			records, parseStats, err := r.source.FetchHistory(gctx, day)
			if err != nil {
				return fmt.Errorf("history %s: %w", day.Format("2006-01-02"), err)
			}

			var rows []*domain.MarketSnapshot
			for _, rec := range records {
				if _, ok := r.regions[rec.RegionID]; !ok {
					continue
				}
				rows = append(rows, &domain.MarketSnapshot{
					TypeID:       rec.TypeID,
					RegionID:     rec.RegionID,
					Date:         domain.BucketDate(rec.Date),
					BuyPrice:     rec.Lowest,
					SellPrice:    rec.Highest,
					AveragePrice: rec.Average,
					Volume:       rec.Volume,
					OrderCount:   rec.OrderCount,
				})
			}

			written, err := r.snapshots.Upsert(gctx, rows)
			mu.Lock()
			stats.RowsWritten += written
			stats.RowsDropped += parseStats.Dropped
			stats.HistoryDays++
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("%w: history %s upsert wrote %d of %d: %v",
					ErrPartialWrite, day.Format("2006-01-02"), written, len(rows), err)
			}
			return nil
		})
	}
	return g.Wait()
}
