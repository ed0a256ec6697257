// Package memory provides in-memory storage implementations used by
// tests and the --use-memory server mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

type snapshotKey struct {
	typeID   int32
	regionID int32
	date     time.Time
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.MarketSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[snapshotKey]*domain.MarketSnapshot)}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Upsert writes the batch, last write wins per bucket key.
func (s *SnapshotStore) Upsert(_ context.Context, rows []*domain.MarketSnapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, r := range rows {
		if r == nil || r.TypeID == 0 || r.RegionID == 0 {
			return written, storage.ErrInvalidInput
		}
		copy := *r
		copy.Date = domain.BucketDate(r.Date)
		s.data[snapshotKey{r.TypeID, r.RegionID, copy.Date}] = &copy
		written++
	}
	return written, nil
}

// GetLatest retrieves the most recent bucket per item for a region.
func (s *SnapshotStore) GetLatest(_ context.Context, regionID int32) ([]*domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int32]*domain.MarketSnapshot)
	for k, v := range s.data {
		if k.regionID != regionID {
			continue
		}
		if cur, ok := latest[k.typeID]; !ok || v.Date.After(cur.Date) {
			latest[k.typeID] = v
		}
	}

	out := make([]*domain.MarketSnapshot, 0, len(latest))
	for _, v := range latest {
		copy := *v
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

// GetHistory retrieves an item's buckets since the given date, date ASC.
func (s *SnapshotStore) GetHistory(_ context.Context, typeID, regionID int32, since time.Time) ([]*domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.MarketSnapshot
	for k, v := range s.data {
		if k.typeID != typeID || k.regionID != regionID || v.Date.Before(since) {
			continue
		}
		copy := *v
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LatestDate returns the newest bucket date for a region.
func (s *SnapshotStore) LatestDate(_ context.Context, regionID int32) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max time.Time
	found := false
	for k, v := range s.data {
		if k.regionID != regionID {
			continue
		}
		if !found || v.Date.After(max) {
			max = v.Date
			found = true
		}
	}
	if !found {
		return time.Time{}, storage.ErrNotFound
	}
	return max, nil
}

// DeleteOlderThan removes buckets before the cutoff.
func (s *SnapshotStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for k, v := range s.data {
		if v.Date.Before(cutoff) {
			delete(s.data, k)
			removed++
		}
	}
	return removed, nil
}
