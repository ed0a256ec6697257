// Package storage defines the persistence contracts for the market
// pipeline. Implementations live in the postgres, clickhouse and memory
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
)

// SnapshotStore persists normalized market snapshots keyed by
// (type_id, region_id, date). Upsert semantics: last write wins per key,
// so re-ingesting a window is idempotent.
type SnapshotStore interface {
	// Upsert writes the batch, overwriting existing bucket keys.
	// Returns the number of rows written.
	Upsert(ctx context.Context, rows []*domain.MarketSnapshot) (int, error)

	// GetLatest retrieves the most recent bucket per item for a region.
	GetLatest(ctx context.Context, regionID int32) ([]*domain.MarketSnapshot, error)

	// GetHistory retrieves an item's buckets since the given date, ordered by date ASC.
	GetHistory(ctx context.Context, typeID, regionID int32, since time.Time) ([]*domain.MarketSnapshot, error)

	// LatestDate returns the newest bucket date for a region.
	// Returns ErrNotFound when the region has no snapshots.
	LatestDate(ctx context.Context, regionID int32) (time.Time, error)

	// DeleteOlderThan removes buckets before the cutoff. Returns rows removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AnalysisStore persists derived profitability rows. Rows are
// append-only per (type_id, region_id, as_of); the latest as_of per key
// is authoritative.
type AnalysisStore interface {
	// InsertBatch appends one analysis run's results.
	InsertBatch(ctx context.Context, results []*domain.AnalysisResult) error

	// GetLatest retrieves the most recent result per item for a region,
	// ordered by the ranking comparator.
	GetLatest(ctx context.Context, regionID int32) ([]*domain.AnalysisResult, error)

	// GetLatestByType retrieves the most recent result for one item.
	// Returns ErrNotFound if the item was never analyzed.
	GetLatestByType(ctx context.Context, typeID, regionID int32) (*domain.AnalysisResult, error)

	// GetSeries retrieves historical results for one item, ordered by as_of ASC.
	GetSeries(ctx context.Context, typeID, regionID int32, since time.Time) ([]*domain.AnalysisResult, error)
}

// PredictionStore persists price forecasts keyed by
// (type_id, region_id, target_date) with overwrite semantics.
type PredictionStore interface {
	// Upsert writes the batch, overwriting existing keys.
	Upsert(ctx context.Context, preds []*domain.Prediction) error

	// GetByType retrieves the prediction with the newest target date for
	// one item. Returns ErrNotFound if none exists.
	GetByType(ctx context.Context, typeID, regionID int32) (*domain.Prediction, error)

	// GetLatest retrieves the newest prediction per item for a region.
	GetLatest(ctx context.Context, regionID int32) ([]*domain.Prediction, error)
}

// PipelineRunStore persists the append-only pipeline audit log.
type PipelineRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.PipelineRun) error

	// Update rewrites a run row by run_id (status transition, counters).
	Update(ctx context.Context, run *domain.PipelineRun) error

	// GetLatestByStage retrieves the most recent run for a stage.
	// Returns ErrNotFound when the stage never ran.
	GetLatestByStage(ctx context.Context, stage domain.Stage) (*domain.PipelineRun, error)
}

// ReferenceStore is the persistent tier of the reference resolver:
// last-known-good item and region metadata.
type ReferenceStore interface {
	UpsertItem(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, typeID int32) (*domain.Item, error)
	ListItems(ctx context.Context) ([]*domain.Item, error)

	UpsertRegion(ctx context.Context, region *domain.Region) error
	GetRegion(ctx context.Context, regionID int32) (*domain.Region, error)
	ListRegions(ctx context.Context) ([]*domain.Region, error)
}

// MetadataStore is a small key/value table for pipeline bookkeeping
// (e.g. the Last-Modified stamp of the upstream order dump).
type MetadataStore interface {
	// Get returns the value for key. Returns ErrNotFound when unset.
	Get(ctx context.Context, key string) (string, error)

	// Set stores or replaces the value for key.
	Set(ctx context.Context, key, value string) error
}

// CacheStore is the persistent tier of the result cache. Entries carry a
// class so the orchestrator can invalidate whole key classes.
type CacheStore interface {
	// Get returns the stored value and its write time.
	// Returns ErrNotFound on miss.
	Get(ctx context.Context, key string) ([]byte, time.Time, error)

	// Set stores or replaces an entry.
	Set(ctx context.Context, key, class string, value []byte) error

	// Delete removes one entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteClass removes every entry of a class.
	DeleteClass(ctx context.Context, class string) error
}
