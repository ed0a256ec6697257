package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Rows land in a ReplacingMergeTree ordered by (type_id, region_id,
// date); re-ingested buckets replace on merge and queries read with
// FINAL, so the store presents last-write-wins upsert semantics.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `type_id, region_id, date, buy_price, sell_price, average_price, volume, order_count`

// Upsert writes the batch. Returns the number of rows written.
func (s *SnapshotStore) Upsert(ctx context.Context, rows []*domain.MarketSnapshot) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx,
		`INSERT INTO market_snapshots (`+snapshotColumns+`)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	written := 0
	for _, r := range rows {
		if r == nil || r.TypeID == 0 || r.RegionID == 0 {
			return 0, storage.ErrInvalidInput
		}
		err = batch.Append(
			r.TypeID, r.RegionID, r.Date,
			r.BuyPrice, r.SellPrice, r.AveragePrice, r.Volume, uint32(r.OrderCount),
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
		written++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return written, nil
}

// GetLatest retrieves the most recent bucket per item for a region.
func (s *SnapshotStore) GetLatest(ctx context.Context, regionID int32) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots FINAL
		WHERE (type_id, date) IN (
			SELECT type_id, MAX(date)
			FROM market_snapshots
			WHERE region_id = ?
			GROUP BY type_id
		) AND region_id = ?
		ORDER BY type_id ASC
	`
	rows, err := s.conn.Query(ctx, query, regionID, regionID)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// GetHistory retrieves an item's buckets since the given date, date ASC.
func (s *SnapshotStore) GetHistory(ctx context.Context, typeID, regionID int32, since time.Time) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM market_snapshots FINAL
		WHERE type_id = ? AND region_id = ? AND date >= ?
		ORDER BY date ASC
	`
	rows, err := s.conn.Query(ctx, query, typeID, regionID, since)
	if err != nil {
		return nil, fmt.Errorf("query snapshot history: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// LatestDate returns the newest bucket date for a region.
func (s *SnapshotStore) LatestDate(ctx context.Context, regionID int32) (time.Time, error) {
	query := `SELECT MAX(date), COUNT() FROM market_snapshots WHERE region_id = ?`
	var max time.Time
	var count uint64
	if err := s.conn.QueryRow(ctx, query, regionID).Scan(&max, &count); err != nil {
		return time.Time{}, fmt.Errorf("query latest snapshot date: %w", err)
	}
	if count == 0 {
		return time.Time{}, storage.ErrNotFound
	}
	return max, nil
}

// DeleteOlderThan removes buckets before the cutoff. ClickHouse deletes
// are asynchronous mutations, so the removed-row count is not reported.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	err := s.conn.Exec(ctx, `ALTER TABLE market_snapshots DELETE WHERE date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return 0, nil
}

type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSnapshots(rows chRows) ([]*domain.MarketSnapshot, error) {
	var out []*domain.MarketSnapshot
	for rows.Next() {
		var m domain.MarketSnapshot
		var orderCount uint32
		if err := rows.Scan(
			&m.TypeID, &m.RegionID, &m.Date,
			&m.BuyPrice, &m.SellPrice, &m.AveragePrice, &m.Volume, &orderCount,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		m.OrderCount = int64(orderCount)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
