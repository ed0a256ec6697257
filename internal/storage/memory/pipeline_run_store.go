package memory

import (
	"context"
	"sync"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// PipelineRunStore is an in-memory implementation of storage.PipelineRunStore.
type PipelineRunStore struct {
	mu   sync.RWMutex
	runs []*domain.PipelineRun
	byID map[string]*domain.PipelineRun
}

// NewPipelineRunStore creates a new in-memory pipeline run store.
func NewPipelineRunStore() *PipelineRunStore {
	return &PipelineRunStore{byID: make(map[string]*domain.PipelineRun)}
}

var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *PipelineRunStore) Insert(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" || !domain.ValidStage(run.Stage) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *run
	s.runs = append(s.runs, &copy)
	s.byID[run.RunID] = &copy
	return nil
}

// Update rewrites a run row by run_id.
func (s *PipelineRunStore) Update(_ context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.byID[run.RunID]
	if !exists {
		return storage.ErrNotFound
	}
	cur.Status = run.Status
	cur.FinishedAt = run.FinishedAt
	cur.Error = run.Error
	cur.RowsWritten = run.RowsWritten
	cur.RowsDropped = run.RowsDropped
	cur.ItemsSkipped = run.ItemsSkipped
	return nil
}

// GetLatestByStage retrieves the most recent run for a stage.
func (s *PipelineRunStore) GetLatestByStage(_ context.Context, stage domain.Stage) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PipelineRun
	for _, r := range s.runs {
		if r.Stage != stage {
			continue
		}
		if best == nil || r.StartedAt.After(best.StartedAt) ||
			(r.StartedAt.Equal(best.StartedAt) && r.RunID > best.RunID) {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	copy := *best
	return &copy, nil
}
