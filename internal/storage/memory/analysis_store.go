package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// AnalysisStore is an in-memory implementation of storage.AnalysisStore.
// Rows accumulate per (type, region); the newest as_of is authoritative.
type AnalysisStore struct {
	mu   sync.RWMutex
	data []*domain.AnalysisResult
}

// NewAnalysisStore creates a new in-memory analysis store.
func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{}
}

var _ storage.AnalysisStore = (*AnalysisStore)(nil)

// InsertBatch appends one analysis run's results.
func (s *AnalysisStore) InsertBatch(_ context.Context, results []*domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		if r == nil || r.TypeID == 0 || r.RegionID == 0 {
			return storage.ErrInvalidInput
		}
		copy := *r
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetLatest retrieves the most recent result per item for a region,
// ordered by the ranking comparator.
func (s *AnalysisStore) GetLatest(_ context.Context, regionID int32) ([]*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int32]*domain.AnalysisResult)
	for _, r := range s.data {
		if r.RegionID != regionID {
			continue
		}
		if cur, ok := latest[r.TypeID]; !ok || r.AsOf.After(cur.AsOf) {
			latest[r.TypeID] = r
		}
	}

	out := make([]*domain.AnalysisResult, 0, len(latest))
	for _, r := range latest {
		copy := *r
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// GetLatestByType retrieves the most recent result for one item.
func (s *AnalysisStore) GetLatestByType(_ context.Context, typeID, regionID int32) (*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.AnalysisResult
	for _, r := range s.data {
		if r.TypeID != typeID || r.RegionID != regionID {
			continue
		}
		if best == nil || r.AsOf.After(best.AsOf) {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	copy := *best
	return &copy, nil
}

// GetSeries retrieves historical results for one item, as_of ASC.
func (s *AnalysisStore) GetSeries(_ context.Context, typeID, regionID int32, since time.Time) ([]*domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AnalysisResult
	for _, r := range s.data {
		if r.TypeID != typeID || r.RegionID != regionID || r.AsOf.Before(since) {
			continue
		}
		copy := *r
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}
