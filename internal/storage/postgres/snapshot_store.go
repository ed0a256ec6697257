package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const upsertSnapshotSQL = `
	INSERT INTO market_snapshots (
		type_id, region_id, date,
		buy_price, sell_price, average_price, volume, order_count
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (type_id, region_id, date) DO UPDATE SET
		buy_price = EXCLUDED.buy_price,
		sell_price = EXCLUDED.sell_price,
		average_price = EXCLUDED.average_price,
		volume = EXCLUDED.volume,
		order_count = EXCLUDED.order_count
`

// Upsert writes the batch in one transaction, last write wins per
// (type_id, region_id, date).
func (s *SnapshotStore) Upsert(ctx context.Context, rows []*domain.MarketSnapshot) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	written := 0
	for _, r := range rows {
		if r == nil || r.TypeID == 0 || r.RegionID == 0 {
			return written, storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, upsertSnapshotSQL,
			r.TypeID, r.RegionID, r.Date,
			r.BuyPrice, r.SellPrice, r.AveragePrice, r.Volume, r.OrderCount,
		)
		if err != nil {
			return written, fmt.Errorf("upsert snapshot: %w", err)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}

// GetLatest retrieves the most recent bucket per item for a region.
func (s *SnapshotStore) GetLatest(ctx context.Context, regionID int32) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT DISTINCT ON (type_id)
			type_id, region_id, date,
			buy_price, sell_price, average_price, volume, order_count
		FROM market_snapshots
		WHERE region_id = $1
		ORDER BY type_id, date DESC
	`
	rows, err := s.pool.Query(ctx, query, regionID)
	if err != nil {
		return nil, fmt.Errorf("get latest snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// GetHistory retrieves an item's buckets since the given date, date ASC.
func (s *SnapshotStore) GetHistory(ctx context.Context, typeID, regionID int32, since time.Time) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT type_id, region_id, date,
			buy_price, sell_price, average_price, volume, order_count
		FROM market_snapshots
		WHERE type_id = $1 AND region_id = $2 AND date >= $3
		ORDER BY date ASC
	`
	rows, err := s.pool.Query(ctx, query, typeID, regionID, since)
	if err != nil {
		return nil, fmt.Errorf("get snapshot history: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// LatestDate returns the newest bucket date for a region.
func (s *SnapshotStore) LatestDate(ctx context.Context, regionID int32) (time.Time, error) {
	var date *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM market_snapshots WHERE region_id = $1`, regionID,
	).Scan(&date)
	if err != nil {
		return time.Time{}, fmt.Errorf("get latest snapshot date: %w", err)
	}
	if date == nil {
		return time.Time{}, storage.ErrNotFound
	}
	return *date, nil
}

// DeleteOlderThan removes buckets before the cutoff.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_snapshots WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

type snapshotRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSnapshots(rows snapshotRows) ([]*domain.MarketSnapshot, error) {
	var out []*domain.MarketSnapshot
	for rows.Next() {
		var m domain.MarketSnapshot
		if err := rows.Scan(
			&m.TypeID, &m.RegionID, &m.Date,
			&m.BuyPrice, &m.SellPrice, &m.AveragePrice, &m.Volume, &m.OrderCount,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
