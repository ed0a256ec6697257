// Package main performs a one-shot historical backfill: it fetches
// every available day of market history inside the retention window,
// then runs one analysis and forecast pass so a fresh deployment
// serves data immediately.
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
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/config"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/forecast"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/ingestion"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
	chstore "github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/clickhouse"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/migrations"
	pgstore "github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	skipDerived := flag.Bool("skip-derived", false, "skip the analysis and forecast passes")
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

	if err := run(ctx, cfg, *skipDerived); err != nil {
		logger.Fatal("backfill: %v", err)
	}
	logger.Info("backfill complete")
}

func run(ctx context.Context, cfg *config.Config, skipDerived bool) error {
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	var snapshots storage.SnapshotStore = pgstore.NewSnapshotStore(pool)
	if cfg.Storage.UseClickhouse {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		snapshots = chstore.NewSnapshotStore(conn)
	}

	everef := ingestion.NewEVERefClient(ingestion.EVERefOptions{
		BaseURL:    cfg.Sources.EVERefBaseURL,
		UserAgent:  cfg.Sources.UserAgent,
		Timeout:    cfg.Sources.Timeout,
		RetryCount: cfg.Sources.RetryCount,
		Metadata:   pgstore.NewMetadataStore(pool),
	})
	runner := ingestion.NewRunner(everef, snapshots, ingestion.Options{
		Regions:       cfg.Market.Regions,
		RetentionDays: cfg.Market.RetentionDays,
	})

	stats, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	logger.Info("backfill ingested %d rows, dropped %d", stats.RowsWritten, stats.RowsDropped)

	if skipDerived {
		return nil
	}

	analyzer := analysis.NewAnalyzer(snapshots, pgstore.NewAnalysisStore(pool), analysis.Options{
		Fees:           domain.FeeSchedule{BrokerFee: cfg.Analysis.BrokerFee, SalesTax: cfg.Analysis.SalesTax},
		Weights:        domain.ScoreWeights{Profit: cfg.Analysis.ProfitWeight, ROI: cfg.Analysis.ROIWeight, Volume: cfg.Analysis.VolumeWeight},
		LookbackDays:   cfg.Analysis.LookbackDays,
		MinDataPoints:  cfg.Analysis.MinDataPoints,
		TrendThreshold: cfg.Analysis.TrendThreshold,
	})
	forecaster := forecast.NewForecaster(snapshots, pgstore.NewPredictionStore(pool), forecast.Options{
		LookbackDays:  cfg.Forecast.LookbackDays,
		MinLinearData: cfg.Forecast.MinLinearData,
		MinNaiveData:  cfg.Forecast.MinNaiveData,
		NaiveWindow:   cfg.Forecast.NaiveWindow,
	})

	for _, regionID := range cfg.Market.Regions {
		if _, err := analyzer.AnalyzeRegion(ctx, regionID); err != nil {
			return fmt.Errorf("analyze region %d: %w", regionID, err)
		}
		if _, err := forecaster.ForecastRegion(ctx, regionID); err != nil {
			return fmt.Errorf("forecast region %d: %w", regionID, err)
		}
	}
	return nil
}
