package orchestrator

import (
	"context"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
)

// Schedule holds per-stage tick intervals. A zero interval disables
// scheduling for that stage.
type Schedule struct {
	Ingest   time.Duration
	Analyze  time.Duration
	Forecast time.Duration
}

// Start launches ticker loops that trigger each stage on its cadence
// until ctx is cancelled. Ticks that land while the stage is running
// are absorbed by the trigger guard.
func (o *Orchestrator) Start(ctx context.Context, schedule Schedule) {
	intervals := map[domain.Stage]time.Duration{
		domain.StageIngest:   schedule.Ingest,
		domain.StageAnalyze:  schedule.Analyze,
		domain.StageForecast: schedule.Forecast,
	}

	for stage, interval := range intervals {
		if interval <= 0 {
			continue
		}
		if _, ok := o.stages[stage]; !ok {
			continue
		}
		o.wg.Add(1)
		go o.tickLoop(ctx, stage, interval)
	}
}

func (o *Orchestrator) tickLoop(ctx context.Context, stage domain.Stage, interval time.Duration) {
	defer o.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("scheduling stage %s every %s", stage, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := o.Trigger(ctx, stage); err != nil {
				logger.Error("scheduled trigger for stage %s: %v", stage, err)
			}
		}
	}
}
