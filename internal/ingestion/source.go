// Package ingestion pulls daily market history and live order
// snapshots from EVERef bulk exports and normalizes them into
// canonical daily buckets.
package ingestion

import (
	"context"
	"errors"
	"time"
)

// Errors reported by sources and the runner.
var (
	// ErrSourceUnavailable signals the upstream export cannot be
	// reached or is missing the requested dataset.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSchemaMismatch signals the export header does not carry the
	// columns the parser requires.
	ErrSchemaMismatch = errors.New("source schema mismatch")
	// ErrNotModified signals the orders export has not changed since
	// the last successful fetch.
	ErrNotModified = errors.New("source not modified")
	// ErrPartialWrite signals the batch landed only partially.
	ErrPartialWrite = errors.New("partial write")
)

// HistoryRecord is one row of the daily market history export.
type HistoryRecord struct {
	Date       time.Time
	RegionID   int32
	TypeID     int32
	Average    float64
	Highest    float64
	Lowest     float64
	Volume     int64
	OrderCount int64
}

// OrderRecord is one row of the live order snapshot export.
type OrderRecord struct {
	RegionID     int32
	TypeID       int32
	IsBuyOrder   bool
	Price        float64
	VolumeRemain int64
}

// ParseStats counts rows handled by a parse pass.
type ParseStats struct {
	Parsed  int
	Dropped int
}

// Source provides market data exports.
type Source interface {
	// AvailableHistoryDates lists dates the source has history for.
	AvailableHistoryDates(ctx context.Context) ([]time.Time, error)
	// FetchHistory downloads and parses one day of market history.
	FetchHistory(ctx context.Context, day time.Time) ([]*HistoryRecord, *ParseStats, error)
	// FetchOrders downloads and parses the latest order snapshot.
	// Returns ErrNotModified when the export is unchanged since the
	// previous successful fetch.
	FetchOrders(ctx context.Context) ([]*OrderRecord, *ParseStats, error)
}
