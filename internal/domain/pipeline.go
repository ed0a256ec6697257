package domain

import "time"

// Stage is one phase of the pipeline, independently scheduled and
// guarded against overlapping runs.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageAnalyze  Stage = "analyze"
	StageForecast Stage = "forecast"
)

// AllStages returns the stages in pipeline order.
func AllStages() []Stage {
	return []Stage{StageIngest, StageAnalyze, StageForecast}
}

// ValidStage reports whether s names a known stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageIngest, StageAnalyze, StageForecast:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// PipelineRun is one orchestrator cycle for a single stage. The table is
// an append-only audit log; the most recent row per stage drives the
// status surface. Per-row and per-item errors are absorbed into the
// counters — only whole-batch failures set Status to failed.
type PipelineRun struct {
	RunID        string
	Stage        Stage
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	Error        string
	RowsWritten  int
	RowsDropped  int
	ItemsSkipped int
}
