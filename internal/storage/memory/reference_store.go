package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// ReferenceStore is an in-memory implementation of storage.ReferenceStore.
type ReferenceStore struct {
	mu      sync.RWMutex
	items   map[int32]*domain.Item
	regions map[int32]*domain.Region
}

// NewReferenceStore creates a new in-memory reference store.
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{
		items:   make(map[int32]*domain.Item),
		regions: make(map[int32]*domain.Region),
	}
}

var _ storage.ReferenceStore = (*ReferenceStore)(nil)

// UpsertItem writes or replaces an item record.
func (s *ReferenceStore) UpsertItem(_ context.Context, item *domain.Item) error {
	if item == nil || item.TypeID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *item
	s.items[item.TypeID] = &copy
	return nil
}

// GetItem retrieves an item by type id.
func (s *ReferenceStore) GetItem(_ context.Context, typeID int32) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[typeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *item
	return &copy, nil
}

// ListItems retrieves all item records, type id ASC.
func (s *ReferenceStore) ListItems(_ context.Context) ([]*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Item, 0, len(s.items))
	for _, item := range s.items {
		copy := *item
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

// UpsertRegion writes or replaces a region record.
func (s *ReferenceStore) UpsertRegion(_ context.Context, region *domain.Region) error {
	if region == nil || region.RegionID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *region
	s.regions[region.RegionID] = &copy
	return nil
}

// GetRegion retrieves a region by id.
func (s *ReferenceStore) GetRegion(_ context.Context, regionID int32) (*domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	region, ok := s.regions[regionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *region
	return &copy, nil
}

// ListRegions retrieves all region records, region id ASC.
func (s *ReferenceStore) ListRegions(_ context.Context) ([]*domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Region, 0, len(s.regions))
	for _, region := range s.regions {
		copy := *region
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out, nil
}
