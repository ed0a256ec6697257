package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

type predictionKey struct {
	typeID     int32
	regionID   int32
	targetDate time.Time
}

// PredictionStore is an in-memory implementation of storage.PredictionStore.
type PredictionStore struct {
	mu   sync.RWMutex
	data map[predictionKey]*domain.Prediction
}

// NewPredictionStore creates a new in-memory prediction store.
func NewPredictionStore() *PredictionStore {
	return &PredictionStore{data: make(map[predictionKey]*domain.Prediction)}
}

var _ storage.PredictionStore = (*PredictionStore)(nil)

// Upsert writes the batch, overwriting existing keys.
func (s *PredictionStore) Upsert(_ context.Context, preds []*domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range preds {
		if p == nil || p.TypeID == 0 || p.RegionID == 0 {
			return storage.ErrInvalidInput
		}
		copy := *p
		copy.TargetDate = domain.BucketDate(p.TargetDate)
		s.data[predictionKey{p.TypeID, p.RegionID, copy.TargetDate}] = &copy
	}
	return nil
}

// GetByType retrieves the prediction with the newest target date.
func (s *PredictionStore) GetByType(_ context.Context, typeID, regionID int32) (*domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Prediction
	for k, p := range s.data {
		if k.typeID != typeID || k.regionID != regionID {
			continue
		}
		if best == nil || p.TargetDate.After(best.TargetDate) {
			best = p
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	copy := *best
	return &copy, nil
}

// GetLatest retrieves the newest prediction per item for a region.
func (s *PredictionStore) GetLatest(_ context.Context, regionID int32) ([]*domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int32]*domain.Prediction)
	for k, p := range s.data {
		if k.regionID != regionID {
			continue
		}
		if cur, ok := latest[k.typeID]; !ok || p.TargetDate.After(cur.TargetDate) {
			latest[k.typeID] = p
		}
	}

	out := make([]*domain.Prediction, 0, len(latest))
	for _, p := range latest {
		copy := *p
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}
