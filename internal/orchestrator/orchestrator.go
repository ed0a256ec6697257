// Package orchestrator coordinates the pipeline stages: one run per
// stage at a time, scheduled ticks plus on-demand triggers, and a
// persisted run ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// StageResult carries the counters a stage reports on completion.
type StageResult struct {
	RowsWritten  int
	RowsDropped  int
	ItemsSkipped int
}

// StageFunc executes one stage run.
type StageFunc func(ctx context.Context) (*StageResult, error)

// Options configures an Orchestrator.
type Options struct {
	// StageTimeout bounds a single stage run. Zero means no timeout.
	StageTimeout time.Duration
	// OnSuccess runs after a stage run reaches succeeded.
	OnSuccess func(stage domain.Stage)
	// OnTransition runs on every persisted status change.
	OnTransition func(run domain.PipelineRun)
}

// Orchestrator serializes runs per stage. A trigger while a stage is
// running is an acknowledged no-op, not an error.
type Orchestrator struct {
	runs   storage.PipelineRunStore
	stages map[domain.Stage]StageFunc
	opts   Options

	mu     sync.Mutex
	active map[domain.Stage]*domain.PipelineRun

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates an Orchestrator over the given stage functions.
func New(runs storage.PipelineRunStore, stages map[domain.Stage]StageFunc, opts Options) *Orchestrator {
	return &Orchestrator{
		runs:   runs,
		stages: stages,
		opts:   opts,
		active: make(map[domain.Stage]*domain.PipelineRun),
		now:    time.Now,
	}
}

// Trigger starts a stage run unless one is already in flight. Returns
// the run and whether this call started it.
func (o *Orchestrator) Trigger(ctx context.Context, stage domain.Stage) (*domain.PipelineRun, bool, error) {
	fn, ok := o.stages[stage]
	if !ok {
		return nil, false, fmt.Errorf("unknown stage %q", stage)
	}

	o.mu.Lock()
	if current, busy := o.active[stage]; busy {
		o.mu.Unlock()
		logger.Debug("stage %s already running as %s, trigger ignored", stage, current.RunID)
		copy := *current
		return &copy, false, nil
	}
	run := &domain.PipelineRun{
		RunID:     uuid.NewString(),
		Stage:     stage,
		Status:    domain.RunRunning,
		StartedAt: o.now().UTC(),
	}
	o.active[stage] = run
	o.mu.Unlock()

	if err := o.runs.Insert(ctx, run); err != nil {
		o.mu.Lock()
		delete(o.active, stage)
		o.mu.Unlock()
		return nil, false, fmt.Errorf("record run start: %w", err)
	}
	o.notify(*run)

	o.wg.Add(1)
	go o.execute(stage, run, fn)

	copy := *run
	return &copy, true, nil
}

// TriggerAll triggers every registered stage in pipeline order.
func (o *Orchestrator) TriggerAll(ctx context.Context) ([]*domain.PipelineRun, error) {
	var out []*domain.PipelineRun
	for _, stage := range domain.AllStages() {
		if _, ok := o.stages[stage]; !ok {
			continue
		}
		run, _, err := o.Trigger(ctx, stage)
		if err != nil {
			return out, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (o *Orchestrator) execute(stage domain.Stage, run *domain.PipelineRun, fn StageFunc) {
	defer o.wg.Done()

	ctx := context.Background()
	if o.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()
	}

	logger.Info("stage %s run %s started", stage, run.RunID)
	result, err := fn(ctx)

	// The guard may have been force-reset while we ran; in that case
	// the reset already wrote the terminal row and ours is stale.
	o.mu.Lock()
	current, busy := o.active[stage]
	if !busy || current.RunID != run.RunID {
		o.mu.Unlock()
		logger.Warn("stage %s run %s superseded by reset, dropping result", stage, run.RunID)
		return
	}
	delete(o.active, stage)
	o.mu.Unlock()

	finished := o.now().UTC()
	run.FinishedAt = &finished
	if result != nil {
		run.RowsWritten = result.RowsWritten
		run.RowsDropped = result.RowsDropped
		run.ItemsSkipped = result.ItemsSkipped
	}
	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		logger.Error("stage %s run %s failed: %v", stage, run.RunID, err)
	} else {
		run.Status = domain.RunSucceeded
		logger.Info("stage %s run %s succeeded: %d written, %d dropped, %d skipped",
			stage, run.RunID, run.RowsWritten, run.RowsDropped, run.ItemsSkipped)
	}

	// The run context may already be cancelled; the terminal row still
	// has to land.
	updateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if uerr := o.runs.Update(updateCtx, run); uerr != nil {
		logger.Error("record run %s finish: %v", run.RunID, uerr)
	}
	o.notify(*run)

	if err == nil && o.opts.OnSuccess != nil {
		o.opts.OnSuccess(stage)
	}
}

// ForceReset frees a wedged stage guard and marks its run failed.
// Returns false when the stage was not running.
func (o *Orchestrator) ForceReset(ctx context.Context, stage domain.Stage) (bool, error) {
	o.mu.Lock()
	run, busy := o.active[stage]
	if !busy {
		o.mu.Unlock()
		return false, nil
	}
	delete(o.active, stage)
	o.mu.Unlock()

	finished := o.now().UTC()
	reset := *run
	reset.Status = domain.RunFailed
	reset.Error = "force reset"
	reset.FinishedAt = &finished
	if err := o.runs.Update(ctx, &reset); err != nil {
		return true, fmt.Errorf("record force reset: %w", err)
	}
	o.notify(reset)
	logger.Warn("stage %s run %s force reset", stage, run.RunID)
	return true, nil
}

// StageStatus reports one stage's current state.
type StageStatus struct {
	Stage     domain.Stage
	Running   bool
	LatestRun *domain.PipelineRun
}

// Status reports every registered stage's latest run.
func (o *Orchestrator) Status(ctx context.Context) ([]StageStatus, error) {
	o.mu.Lock()
	running := make(map[domain.Stage]bool, len(o.active))
	for stage := range o.active {
		running[stage] = true
	}
	o.mu.Unlock()

	var out []StageStatus
	for _, stage := range domain.AllStages() {
		if _, ok := o.stages[stage]; !ok {
			continue
		}
		status := StageStatus{Stage: stage, Running: running[stage]}
		run, err := o.runs.GetLatestByStage(ctx, stage)
		switch {
		case err == nil:
			status.LatestRun = run
		case errors.Is(err, storage.ErrNotFound):
			// Stage has never run.
		default:
			return nil, fmt.Errorf("latest run for stage %s: %w", stage, err)
		}
		out = append(out, status)
	}
	return out, nil
}

func (o *Orchestrator) notify(run domain.PipelineRun) {
	if o.opts.OnTransition != nil {
		o.opts.OnTransition(run)
	}
}

// Wait blocks until all in-flight stage runs finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
