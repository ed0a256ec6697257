package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

func TestPipelineRunStore_InsertUpdateLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPipelineRunStore(pool)

	started := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	run := &domain.PipelineRun{
		RunID:     "run-1",
		Stage:     domain.StageIngest,
		Status:    domain.RunRunning,
		StartedAt: started,
	}
	require.NoError(t, store.Insert(ctx, run))

	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)

	finished := started.Add(time.Minute)
	run.Status = domain.RunSucceeded
	run.FinishedAt = &finished
	run.RowsWritten = 1000
	run.RowsDropped = 3
	require.NoError(t, store.Update(ctx, run))

	got, err := store.GetLatestByStage(ctx, domain.StageIngest)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.RunSucceeded, got.Status)
	assert.Equal(t, 1000, got.RowsWritten)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestPipelineRunStore_GetLatestByStagePicksNewest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPipelineRunStore(pool)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, &domain.PipelineRun{
		RunID: "old", Stage: domain.StageAnalyze, Status: domain.RunFailed, StartedAt: base, Error: "boom",
	}))
	require.NoError(t, store.Insert(ctx, &domain.PipelineRun{
		RunID: "new", Stage: domain.StageAnalyze, Status: domain.RunRunning, StartedAt: base.Add(time.Hour),
	}))

	got, err := store.GetLatestByStage(ctx, domain.StageAnalyze)
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)

	_, err = store.GetLatestByStage(ctx, domain.StageForecast)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPipelineRunStore_UpdateMissingRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewPipelineRunStore(pool).Update(context.Background(), &domain.PipelineRun{
		RunID: "ghost", Stage: domain.StageIngest, Status: domain.RunFailed,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
