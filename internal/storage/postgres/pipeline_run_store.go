package postgres

import (
	"context"
	"fmt"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// PipelineRunStore implements storage.PipelineRunStore using PostgreSQL.
type PipelineRunStore struct {
	pool *Pool
}

// NewPipelineRunStore creates a new PipelineRunStore.
func NewPipelineRunStore(pool *Pool) *PipelineRunStore {
	return &PipelineRunStore{pool: pool}
}

var _ storage.PipelineRunStore = (*PipelineRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *PipelineRunStore) Insert(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" || !domain.ValidStage(run.Stage) {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, stage, status, started_at, finished_at, error,
			rows_written, rows_dropped, items_skipped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		run.RunID, string(run.Stage), string(run.Status),
		run.StartedAt, run.FinishedAt, run.Error,
		run.RowsWritten, run.RowsDropped, run.ItemsSkipped,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// Update rewrites a run row by run_id.
func (s *PipelineRunStore) Update(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE pipeline_runs SET
			status = $2, finished_at = $3, error = $4,
			rows_written = $5, rows_dropped = $6, items_skipped = $7
		WHERE run_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		run.RunID, string(run.Status), run.FinishedAt, run.Error,
		run.RowsWritten, run.RowsDropped, run.ItemsSkipped,
	)
	if err != nil {
		return fmt.Errorf("update pipeline run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetLatestByStage retrieves the most recent run for a stage.
func (s *PipelineRunStore) GetLatestByStage(ctx context.Context, stage domain.Stage) (*domain.PipelineRun, error) {
	query := `
		SELECT run_id, stage, status, started_at, finished_at, error,
			rows_written, rows_dropped, items_skipped
		FROM pipeline_runs
		WHERE stage = $1
		ORDER BY started_at DESC, run_id DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, string(stage))

	var run domain.PipelineRun
	var stageStr, statusStr string
	err := row.Scan(
		&run.RunID, &stageStr, &statusStr, &run.StartedAt, &run.FinishedAt, &run.Error,
		&run.RowsWritten, &run.RowsDropped, &run.ItemsSkipped,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest pipeline run: %w", err)
	}
	run.Stage = domain.Stage(stageStr)
	run.Status = domain.RunStatus(statusStr)
	return &run, nil
}
