package postgres

import (
	"context"
	"fmt"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// ReferenceStore implements storage.ReferenceStore using PostgreSQL.
// It is the persistent last-known-good tier of the reference resolver.
type ReferenceStore struct {
	pool *Pool
}

// NewReferenceStore creates a new ReferenceStore.
func NewReferenceStore(pool *Pool) *ReferenceStore {
	return &ReferenceStore{pool: pool}
}

var _ storage.ReferenceStore = (*ReferenceStore)(nil)

// UpsertItem stores or replaces item metadata.
func (s *ReferenceStore) UpsertItem(ctx context.Context, item *domain.Item) error {
	if item == nil || item.TypeID == 0 {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO item_names (type_id, name, description, icon_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon_ref = EXCLUDED.icon_ref
	`
	if _, err := s.pool.Exec(ctx, query, item.TypeID, item.Name, item.Description, item.IconRef); err != nil {
		return fmt.Errorf("upsert item metadata: %w", err)
	}
	return nil
}

// GetItem retrieves item metadata. Returns ErrNotFound if absent.
func (s *ReferenceStore) GetItem(ctx context.Context, typeID int32) (*domain.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT type_id, name, description, icon_ref FROM item_names WHERE type_id = $1`, typeID)
	var item domain.Item
	if err := row.Scan(&item.TypeID, &item.Name, &item.Description, &item.IconRef); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get item metadata: %w", err)
	}
	return &item, nil
}

// ListItems retrieves all cached item metadata.
func (s *ReferenceStore) ListItems(ctx context.Context) ([]*domain.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT type_id, name, description, icon_ref FROM item_names ORDER BY type_id`)
	if err != nil {
		return nil, fmt.Errorf("list item metadata: %w", err)
	}
	defer rows.Close()

	var out []*domain.Item
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.TypeID, &item.Name, &item.Description, &item.IconRef); err != nil {
			return nil, fmt.Errorf("scan item metadata: %w", err)
		}
		out = append(out, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item metadata: %w", err)
	}
	return out, nil
}

// UpsertRegion stores or replaces a region name.
func (s *ReferenceStore) UpsertRegion(ctx context.Context, region *domain.Region) error {
	if region == nil || region.RegionID == 0 {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO regions (region_id, name)
		VALUES ($1, $2)
		ON CONFLICT (region_id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := s.pool.Exec(ctx, query, region.RegionID, region.Name); err != nil {
		return fmt.Errorf("upsert region: %w", err)
	}
	return nil
}

// GetRegion retrieves a region. Returns ErrNotFound if absent.
func (s *ReferenceStore) GetRegion(ctx context.Context, regionID int32) (*domain.Region, error) {
	row := s.pool.QueryRow(ctx, `SELECT region_id, name FROM regions WHERE region_id = $1`, regionID)
	var r domain.Region
	if err := row.Scan(&r.RegionID, &r.Name); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get region: %w", err)
	}
	return &r, nil
}

// ListRegions retrieves all cached regions ordered by id.
func (s *ReferenceStore) ListRegions(ctx context.Context) ([]*domain.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT region_id, name FROM regions ORDER BY region_id`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Region
	for rows.Next() {
		var r domain.Region
		if err := rows.Scan(&r.RegionID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}
	return out, nil
}
