// Package main runs the full analyzer service: scheduled ingestion,
// analysis and forecasting plus the REST and websocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/analysis"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/api"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/cache"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/config"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/forecast"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/ingestion"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/observability"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/orchestrator"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/reference"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
	chstore "github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/clickhouse"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/memory"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/migrations"
	pgstore "github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/postgres"
)

type stores struct {
	snapshots   storage.SnapshotStore
	analysis    storage.AnalysisStore
	predictions storage.PredictionStore
	runs        storage.PipelineRunStore
	reference   storage.ReferenceStore
	metadata    storage.MetadataStore
	cache       storage.CacheStore

	close func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "validate config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("open stores: %v", err)
	}
	defer st.close()

	metrics := observability.NewMetrics("eve_market_analyzer")

	esi := reference.NewESIClient(reference.ESIOptions{
		BaseURL:    cfg.Sources.ESIBaseURL,
		UserAgent:  cfg.Sources.UserAgent,
		Timeout:    cfg.Sources.Timeout,
		RetryCount: cfg.Sources.RetryCount,
	})
	resolver := reference.NewResolver(st.reference, esi)
	if err := reference.LoadSDE(ctx, cfg.Sources.SDEDir, st.reference); err != nil {
		logger.Warn("sde load: %v", err)
	}
	for _, regionID := range cfg.Market.Regions {
		resolver.ResolveRegion(ctx, regionID)
	}
	if err := resolver.Warm(ctx); err != nil {
		logger.Warn("reference warm: %v", err)
	}

	everef := ingestion.NewEVERefClient(ingestion.EVERefOptions{
		BaseURL:    cfg.Sources.EVERefBaseURL,
		UserAgent:  cfg.Sources.UserAgent,
		Timeout:    cfg.Sources.Timeout,
		RetryCount: cfg.Sources.RetryCount,
		Metadata:   st.metadata,
	})
	runner := ingestion.NewRunner(everef, st.snapshots, ingestion.Options{
		Regions:       cfg.Market.Regions,
		RetentionDays: cfg.Market.RetentionDays,
	})
	analyzer := analysis.NewAnalyzer(st.snapshots, st.analysis, analysis.Options{
		Fees:           domain.FeeSchedule{BrokerFee: cfg.Analysis.BrokerFee, SalesTax: cfg.Analysis.SalesTax},
		Weights:        domain.ScoreWeights{Profit: cfg.Analysis.ProfitWeight, ROI: cfg.Analysis.ROIWeight, Volume: cfg.Analysis.VolumeWeight},
		LookbackDays:   cfg.Analysis.LookbackDays,
		MinDataPoints:  cfg.Analysis.MinDataPoints,
		TrendThreshold: cfg.Analysis.TrendThreshold,
	})
	forecaster := forecast.NewForecaster(st.snapshots, st.predictions, forecast.Options{
		LookbackDays:  cfg.Forecast.LookbackDays,
		MinLinearData: cfg.Forecast.MinLinearData,
		MinNaiveData:  cfg.Forecast.MinNaiveData,
		NaiveWindow:   cfg.Forecast.NaiveWindow,
	})

	results := cache.New(cache.Options{
		ReferenceTTL: cfg.Cache.ReferenceTTL,
		ResultTTL:    cfg.Cache.ResultTTL,
		Store:        st.cache,
		OnHit:        func(tier string) { metrics.CacheHits.WithLabelValues(tier).Inc() },
		OnMiss:       metrics.CacheMisses.Inc,
	})
	hub := api.NewHub(metrics)

	stages := map[domain.Stage]orchestrator.StageFunc{
		domain.StageIngest: func(ctx context.Context) (*orchestrator.StageResult, error) {
			stats, err := runner.Run(ctx)
			result := &orchestrator.StageResult{RowsWritten: stats.RowsWritten, RowsDropped: stats.RowsDropped}
			metrics.SnapshotRowsWritten.Add(float64(stats.RowsWritten))
			metrics.SnapshotRowsDropped.Add(float64(stats.RowsDropped))
			metrics.HistoryDaysFetched.Add(float64(stats.HistoryDays))
			if err != nil {
				metrics.SourceErrors.WithLabelValues("everef").Inc()
			}
			return result, err
		},
		domain.StageAnalyze: func(ctx context.Context) (*orchestrator.StageResult, error) {
			result := &orchestrator.StageResult{}
			for _, regionID := range cfg.Market.Regions {
				stats, err := analyzer.AnalyzeRegion(ctx, regionID)
				if stats != nil {
					result.RowsWritten += stats.ItemsAnalyzed
					result.ItemsSkipped += stats.ItemsSkipped
					metrics.ItemsAnalyzed.Add(float64(stats.ItemsAnalyzed))
					metrics.ItemsSkipped.WithLabelValues(string(domain.StageAnalyze)).Add(float64(stats.ItemsSkipped))
				}
				if err != nil {
					return result, err
				}
			}
			return result, nil
		},
		domain.StageForecast: func(ctx context.Context) (*orchestrator.StageResult, error) {
			result := &orchestrator.StageResult{}
			for _, regionID := range cfg.Market.Regions {
				stats, err := forecaster.ForecastRegion(ctx, regionID)
				if stats != nil {
					result.RowsWritten += stats.ItemsPredicted
					result.ItemsSkipped += stats.ItemsSkipped
					metrics.ItemsPredicted.Add(float64(stats.ItemsPredicted))
					metrics.ItemsSkipped.WithLabelValues(string(domain.StageForecast)).Add(float64(stats.ItemsSkipped))
				}
				if err != nil {
					return result, err
				}
			}
			return result, nil
		},
	}

	orch := orchestrator.New(st.runs, stages, orchestrator.Options{
		StageTimeout: cfg.Pipeline.StageTimeout,
		OnSuccess: func(stage domain.Stage) {
			metrics.LastSuccessfulStage.WithLabelValues(string(stage)).SetToCurrentTime()
			if err := results.InvalidateClass(context.Background(), cache.ClassResult); err != nil {
				logger.Warn("invalidate result cache after %s: %v", stage, err)
			}
		},
		OnTransition: func(run domain.PipelineRun) {
			metrics.StageRunsTotal.WithLabelValues(string(run.Stage), string(run.Status)).Inc()
			if run.FinishedAt != nil {
				metrics.StageDuration.WithLabelValues(string(run.Stage)).
					Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
			}
			hub.BroadcastRun(run)
		},
	})

	orch.Start(ctx, orchestrator.Schedule{
		Ingest:   cfg.Pipeline.IngestInterval,
		Analyze:  cfg.Pipeline.AnalyzeInterval,
		Forecast: cfg.Pipeline.ForecastInterval,
	})

	server := api.NewServer(api.Options{
		ListenAddr:    cfg.Server.ListenAddr,
		APIKey:        cfg.Server.APIKey,
		DefaultRegion: cfg.Market.Regions[0],
		Metrics:       metrics,
	}, st.analysis, st.predictions, st.snapshots, resolver, results, orch, hub)

	if err := server.Run(ctx); err != nil {
		logger.Error("api server: %v", err)
	}
	stop()
	orch.Wait()
	logger.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage.UseMemory {
		logger.Info("using in-memory stores")
		return &stores{
			snapshots:   memory.NewSnapshotStore(),
			analysis:    memory.NewAnalysisStore(),
			predictions: memory.NewPredictionStore(),
			runs:        memory.NewPipelineRunStore(),
			reference:   memory.NewReferenceStore(),
			metadata:    memory.NewMetadataStore(),
			cache:       memory.NewCacheStore(),
			close:       func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		snapshots:   pgstore.NewSnapshotStore(pool),
		analysis:    pgstore.NewAnalysisStore(pool),
		predictions: pgstore.NewPredictionStore(pool),
		runs:        pgstore.NewPipelineRunStore(pool),
		reference:   pgstore.NewReferenceStore(pool),
		metadata:    pgstore.NewMetadataStore(pool),
		cache:       pgstore.NewCacheStore(pool),
		close:       pool.Close,
	}

	if cfg.Storage.UseClickhouse {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.snapshots = chstore.NewSnapshotStore(conn)
		st.close = func() {
			conn.Close()
			pool.Close()
		}
	}
	return st, nil
}
