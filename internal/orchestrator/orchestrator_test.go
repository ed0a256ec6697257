package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/memory"
)

func TestTriggerRunsStageToSuccess(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	var calls int32
	stages := map[domain.Stage]StageFunc{
		domain.StageIngest: func(context.Context) (*StageResult, error) {
			atomic.AddInt32(&calls, 1)
			return &StageResult{RowsWritten: 7, RowsDropped: 2}, nil
		},
	}
	o := New(runs, stages, Options{})

	run, started, err := o.Trigger(ctx, domain.StageIngest)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if !started {
		t.Fatal("Trigger reported not started on idle stage")
	}
	if run.Status != domain.RunRunning {
		t.Fatalf("initial status = %v, want running", run.Status)
	}
	o.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("stage ran %d times, want 1", got)
	}

	final, err := runs.GetLatestByStage(ctx, domain.StageIngest)
	if err != nil {
		t.Fatalf("GetLatestByStage failed: %v", err)
	}
	if final.Status != domain.RunSucceeded {
		t.Fatalf("final status = %v, want succeeded", final.Status)
	}
	if final.RowsWritten != 7 || final.RowsDropped != 2 {
		t.Fatalf("counters = (%d, %d), want (7, 2)", final.RowsWritten, final.RowsDropped)
	}
	if final.FinishedAt == nil {
		t.Fatal("FinishedAt not set on terminal run")
	}
}

func TestTriggerConflictIsNoOp(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	release := make(chan struct{})
	stages := map[domain.Stage]StageFunc{
		domain.StageIngest: func(context.Context) (*StageResult, error) {
			<-release
			return &StageResult{}, nil
		},
	}
	o := New(runs, stages, Options{})

	first, started, err := o.Trigger(ctx, domain.StageIngest)
	if err != nil || !started {
		t.Fatalf("first trigger: started=%v err=%v", started, err)
	}

	second, started, err := o.Trigger(ctx, domain.StageIngest)
	if err != nil {
		t.Fatalf("conflicting trigger returned error: %v", err)
	}
	if started {
		t.Fatal("conflicting trigger reported started")
	}
	if second.RunID != first.RunID {
		t.Fatalf("conflict returned run %s, want in-flight run %s", second.RunID, first.RunID)
	}

	close(release)
	o.Wait()
}

func TestConcurrentTriggersStartExactlyOneRun(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	release := make(chan struct{})
	var active, maxActive int32
	stages := map[domain.Stage]StageFunc{
		domain.StageAnalyze: func(context.Context) (*StageResult, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&active, -1)
			return &StageResult{}, nil
		},
	}
	o := New(runs, stages, Options{})

	var startedCount int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, started, err := o.Trigger(ctx, domain.StageAnalyze)
			if err != nil {
				t.Errorf("Trigger failed: %v", err)
			}
			if started {
				atomic.AddInt32(&startedCount, 1)
			}
		}()
	}
	wg.Wait()
	close(release)
	o.Wait()

	if got := atomic.LoadInt32(&startedCount); got != 1 {
		t.Fatalf("%d triggers started runs, want 1", got)
	}
	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("max concurrent stage executions = %d, want 1", got)
	}
}

func TestFailedRunRetainsErrorAndFreesGuard(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	boom := errors.New("source unreachable")
	stages := map[domain.Stage]StageFunc{
		domain.StageIngest: func(context.Context) (*StageResult, error) {
			return &StageResult{RowsWritten: 3}, boom
		},
	}
	o := New(runs, stages, Options{})

	if _, _, err := o.Trigger(ctx, domain.StageIngest); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	o.Wait()

	final, err := runs.GetLatestByStage(ctx, domain.StageIngest)
	if err != nil {
		t.Fatalf("GetLatestByStage failed: %v", err)
	}
	if final.Status != domain.RunFailed {
		t.Fatalf("status = %v, want failed", final.Status)
	}
	if final.Error != "source unreachable" {
		t.Fatalf("error = %q, want source unreachable", final.Error)
	}
	if final.RowsWritten != 3 {
		t.Fatalf("partial counters lost: RowsWritten = %d, want 3", final.RowsWritten)
	}

	// The guard must be free again after a failure.
	_, started, err := o.Trigger(ctx, domain.StageIngest)
	if err != nil || !started {
		t.Fatalf("retrigger after failure: started=%v err=%v", started, err)
	}
	o.Wait()
}

func TestForceResetFreesGuardAndSupersedesRun(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	release := make(chan struct{})
	stages := map[domain.Stage]StageFunc{
		domain.StageForecast: func(context.Context) (*StageResult, error) {
			<-release
			return &StageResult{RowsWritten: 99}, nil
		},
	}
	o := New(runs, stages, Options{})

	wedged, _, err := o.Trigger(ctx, domain.StageForecast)
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	reset, err := o.ForceReset(ctx, domain.StageForecast)
	if err != nil {
		t.Fatalf("ForceReset failed: %v", err)
	}
	if !reset {
		t.Fatal("ForceReset reported nothing to reset")
	}

	final, err := runs.GetLatestByStage(ctx, domain.StageForecast)
	if err != nil {
		t.Fatalf("GetLatestByStage failed: %v", err)
	}
	if final.RunID != wedged.RunID || final.Status != domain.RunFailed {
		t.Fatalf("reset run = (%s, %v), want (%s, failed)", final.RunID, final.Status, wedged.RunID)
	}

	// Let the superseded goroutine finish; its result must not
	// overwrite the reset row.
	close(release)
	o.Wait()

	final, err = runs.GetLatestByStage(ctx, domain.StageForecast)
	if err != nil {
		t.Fatalf("GetLatestByStage failed: %v", err)
	}
	if final.Status != domain.RunFailed || final.RowsWritten == 99 {
		t.Fatalf("superseded run overwrote the reset row: %+v", final)
	}
}

func TestForceResetOnIdleStage(t *testing.T) {
	o := New(memory.NewPipelineRunStore(), map[domain.Stage]StageFunc{
		domain.StageIngest: func(context.Context) (*StageResult, error) { return &StageResult{}, nil },
	}, Options{})

	reset, err := o.ForceReset(context.Background(), domain.StageIngest)
	if err != nil {
		t.Fatalf("ForceReset failed: %v", err)
	}
	if reset {
		t.Fatal("ForceReset reset an idle stage")
	}
}

func TestOnSuccessHookFiresOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	fail := true
	stages := map[domain.Stage]StageFunc{
		domain.StageIngest: func(context.Context) (*StageResult, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return &StageResult{}, nil
		},
	}

	var successes int32
	o := New(runs, stages, Options{
		OnSuccess: func(domain.Stage) { atomic.AddInt32(&successes, 1) },
	})

	if _, _, err := o.Trigger(ctx, domain.StageIngest); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	o.Wait()
	if got := atomic.LoadInt32(&successes); got != 0 {
		t.Fatalf("OnSuccess fired %d times after failure, want 0", got)
	}

	fail = false
	if _, _, err := o.Trigger(ctx, domain.StageIngest); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	o.Wait()
	if got := atomic.LoadInt32(&successes); got != 1 {
		t.Fatalf("OnSuccess fired %d times after success, want 1", got)
	}
}

func TestStatusReportsLatestRuns(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	stages := map[domain.Stage]StageFunc{
		domain.StageIngest:  func(context.Context) (*StageResult, error) { return &StageResult{}, nil },
		domain.StageAnalyze: func(context.Context) (*StageResult, error) { return &StageResult{}, nil },
	}
	o := New(runs, stages, Options{})

	status, err := o.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status) != 2 {
		t.Fatalf("got %d stages, want 2", len(status))
	}
	for _, st := range status {
		if st.Running || st.LatestRun != nil {
			t.Fatalf("idle stage %s reported %+v", st.Stage, st)
		}
	}

	if _, _, err := o.Trigger(ctx, domain.StageIngest); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	o.Wait()

	status, err = o.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, st := range status {
		if st.Stage == domain.StageIngest {
			if st.LatestRun == nil || st.LatestRun.Status != domain.RunSucceeded {
				t.Fatalf("ingest status = %+v, want succeeded run", st)
			}
		}
	}
}

func TestUnknownStage(t *testing.T) {
	o := New(memory.NewPipelineRunStore(), map[domain.Stage]StageFunc{}, Options{})
	if _, _, err := o.Trigger(context.Background(), domain.Stage("bogus")); err == nil {
		t.Fatal("Trigger accepted unknown stage")
	}
}

func TestStageTimeoutCancelsContext(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewPipelineRunStore()

	stages := map[domain.Stage]StageFunc{
		domain.StageIngest: func(ctx context.Context) (*StageResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &StageResult{}, nil
			}
		},
	}
	o := New(runs, stages, Options{StageTimeout: 50 * time.Millisecond})

	if _, _, err := o.Trigger(ctx, domain.StageIngest); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	o.Wait()

	final, err := runs.GetLatestByStage(ctx, domain.StageIngest)
	if err != nil {
		t.Fatalf("GetLatestByStage failed: %v", err)
	}
	if final.Status != domain.RunFailed {
		t.Fatalf("status = %v, want failed on timeout", final.Status)
	}
}
