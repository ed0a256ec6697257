package reference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// ItemFetcher retrieves metadata from the upstream API on a store miss.
type ItemFetcher interface {
	FetchItem(ctx context.Context, typeID int32) (*domain.Item, error)
	FetchRegion(ctx context.Context, regionID int32) (*domain.Region, error)
}

// Resolver resolves item and region metadata with a memory map in
// front of the reference store, falling back to the upstream API.
// A resolution failure never fails the caller; unresolved items get
// placeholder names.
type Resolver struct {
	store   storage.ReferenceStore
	fetcher ItemFetcher
	group   singleflight.Group

	mu      sync.RWMutex
	items   map[int32]*domain.Item
	regions map[int32]*domain.Region
}

// NewResolver creates a Resolver. fetcher may be nil to disable the
// upstream tier.
func NewResolver(store storage.ReferenceStore, fetcher ItemFetcher) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		items:   make(map[int32]*domain.Item),
		regions: make(map[int32]*domain.Region),
	}
}

// ResolveItem returns metadata for a type id. Always returns a usable
// Item: on a full miss the item carries only the id and DisplayName
// falls back to a placeholder.
func (r *Resolver) ResolveItem(ctx context.Context, typeID int32) *domain.Item {
	r.mu.RLock()
	cached, ok := r.items[typeID]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := r.group.Do(fmt.Sprintf("item:%d", typeID), func() (interface{}, error) {
		return r.resolveItemSlow(ctx, typeID), nil
	})
	return v.(*domain.Item)
}

func (r *Resolver) resolveItemSlow(ctx context.Context, typeID int32) *domain.Item {
	item, err := r.store.GetItem(ctx, typeID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("reference store lookup failed for type %d: %v", typeID, err)
	}

	if (item == nil || item.Name == nil) && r.fetcher != nil {
		fetched, err := r.fetcher.FetchItem(ctx, typeID)
		if err != nil {
			logger.Warn("upstream item lookup failed for type %d: %v", typeID, err)
		} else {
			item = fetched
			if err := r.store.UpsertItem(ctx, item); err != nil {
				logger.Warn("persist item %d failed: %v", typeID, err)
			}
		}
	}

	if item == nil {
		item = &domain.Item{TypeID: typeID}
	}

	r.mu.Lock()
	r.items[typeID] = item
	r.mu.Unlock()
	return item
}

// ResolveRegion returns metadata for a region id, or nil when the
// region is unknown everywhere.
func (r *Resolver) ResolveRegion(ctx context.Context, regionID int32) *domain.Region {
	r.mu.RLock()
	cached, ok := r.regions[regionID]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := r.group.Do(fmt.Sprintf("region:%d", regionID), func() (interface{}, error) {
		region, err := r.store.GetRegion(ctx, regionID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("reference store lookup failed for region %d: %v", regionID, err)
		}

		if region == nil && r.fetcher != nil {
			fetched, err := r.fetcher.FetchRegion(ctx, regionID)
			if err != nil {
				logger.Warn("upstream region lookup failed for region %d: %v", regionID, err)
			} else {
				region = fetched
				if err := r.store.UpsertRegion(ctx, region); err != nil {
					logger.Warn("persist region %d failed: %v", regionID, err)
				}
			}
		}

		if region != nil {
			r.mu.Lock()
			r.regions[regionID] = region
			r.mu.Unlock()
		}
		return region, nil
	})
	region, _ := v.(*domain.Region)
	return region
}

// ListRegions returns all known regions from the store.
func (r *Resolver) ListRegions(ctx context.Context) ([]*domain.Region, error) {
	return r.store.ListRegions(ctx)
}

// Warm preloads the memory tier from the store.
func (r *Resolver) Warm(ctx context.Context) error {
	items, err := r.store.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("warm items: %w", err)
	}
	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("warm regions: %w", err)
	}

	r.mu.Lock()
	for _, item := range items {
		r.items[item.TypeID] = item
	}
	for _, region := range regions {
		r.regions[region.RegionID] = region
	}
	r.mu.Unlock()

	logger.Info("reference cache warmed: %d items, %d regions", len(items), len(regions))
	return nil
}
