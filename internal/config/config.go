// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Market   MarketConfig   `mapstructure:"market"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	APIKey      string `mapstructure:"api_key"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
	UseClickhouse bool   `mapstructure:"use_clickhouse"`
	UseMemory     bool   `mapstructure:"use_memory"`
}

// MarketConfig holds market scope configuration.
type MarketConfig struct {
	Regions       []int32 `mapstructure:"regions"`
	RetentionDays int     `mapstructure:"retention_days"`
}

// SourcesConfig holds upstream data source configuration.
type SourcesConfig struct {
	EVERefBaseURL string        `mapstructure:"everef_base_url"`
	ESIBaseURL    string        `mapstructure:"esi_base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryCount    int           `mapstructure:"retry_count"`
	SDEDir        string        `mapstructure:"sde_dir"`
}

// AnalysisConfig holds profitability analysis configuration.
type AnalysisConfig struct {
	BrokerFee      float64 `mapstructure:"broker_fee"`
	SalesTax       float64 `mapstructure:"sales_tax"`
	ProfitWeight   float64 `mapstructure:"profit_weight"`
	ROIWeight      float64 `mapstructure:"roi_weight"`
	VolumeWeight   float64 `mapstructure:"volume_weight"`
	LookbackDays   int     `mapstructure:"lookback_days"`
	MinDataPoints  int     `mapstructure:"min_data_points"`
	TrendThreshold float64 `mapstructure:"trend_threshold"`
}

// ForecastConfig holds price forecasting configuration.
type ForecastConfig struct {
	LookbackDays   int `mapstructure:"lookback_days"`
	MinLinearData int `mapstructure:"min_linear_data"`
	MinNaiveData   int `mapstructure:"min_naive_data"`
	NaiveWindow    int `mapstructure:"naive_window"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	ReferenceTTL time.Duration `mapstructure:"reference_ttl"`
	ResultTTL    time.Duration `mapstructure:"result_ttl"`
}

// PipelineConfig holds orchestrator scheduling configuration.
type PipelineConfig struct {
	IngestInterval   time.Duration `mapstructure:"ingest_interval"`
	AnalyzeInterval  time.Duration `mapstructure:"analyze_interval"`
	ForecastInterval time.Duration `mapstructure:"forecast_interval"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("EVE_MARKET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9100")

	v.SetDefault("storage.use_clickhouse", false)
	v.SetDefault("storage.use_memory", false)

	// 10000002 is The Forge (Jita).
	v.SetDefault("market.regions", []int32{10000002})
	v.SetDefault("market.retention_days", 90)

	v.SetDefault("sources.everef_base_url", "https://data.everef.net")
	v.SetDefault("sources.esi_base_url", "https://esi.evetech.net/latest")
	v.SetDefault("sources.user_agent", "eve-market-analyzer")
	v.SetDefault("sources.timeout", "60s")
	v.SetDefault("sources.retry_count", 3)
	v.SetDefault("sources.sde_dir", "./data/sde")

	v.SetDefault("analysis.broker_fee", 0.01)
	v.SetDefault("analysis.sales_tax", 0.01)
	v.SetDefault("analysis.profit_weight", 0.4)
	v.SetDefault("analysis.roi_weight", 0.3)
	v.SetDefault("analysis.volume_weight", 0.3)
	v.SetDefault("analysis.lookback_days", 30)
	v.SetDefault("analysis.min_data_points", 5)
	v.SetDefault("analysis.trend_threshold", 0.01)

	v.SetDefault("forecast.lookback_days", 30)
	v.SetDefault("forecast.min_linear_data", 14)
	v.SetDefault("forecast.min_naive_data", 2)
	v.SetDefault("forecast.naive_window", 7)

	v.SetDefault("cache.reference_ttl", "24h")
	v.SetDefault("cache.result_ttl", "1h")

	v.SetDefault("pipeline.ingest_interval", "30m")
	v.SetDefault("pipeline.analyze_interval", "1h")
	v.SetDefault("pipeline.forecast_interval", "24h")
	v.SetDefault("pipeline.stage_timeout", "20m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if !c.Storage.UseMemory {
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required")
		}
		if c.Storage.UseClickhouse && c.Storage.ClickhouseDSN == "" {
			return fmt.Errorf("storage.clickhouse_dsn is required when use_clickhouse is set")
		}
	}

	if len(c.Market.Regions) == 0 {
		return fmt.Errorf("market.regions must contain at least one region")
	}
	if c.Market.RetentionDays < 1 {
		return fmt.Errorf("market.retention_days must be at least 1")
	}

	if c.Sources.EVERefBaseURL == "" {
		return fmt.Errorf("sources.everef_base_url is required")
	}
	if c.Sources.ESIBaseURL == "" {
		return fmt.Errorf("sources.esi_base_url is required")
	}

	if c.Analysis.BrokerFee < 0 || c.Analysis.BrokerFee >= 1 {
		return fmt.Errorf("analysis.broker_fee must be in [0, 1)")
	}
	if c.Analysis.SalesTax < 0 || c.Analysis.SalesTax >= 1 {
		return fmt.Errorf("analysis.sales_tax must be in [0, 1)")
	}
	if c.Analysis.ProfitWeight < 0 || c.Analysis.ROIWeight < 0 || c.Analysis.VolumeWeight < 0 {
		return fmt.Errorf("analysis score weights must not be negative")
	}
	if c.Analysis.ProfitWeight+c.Analysis.ROIWeight+c.Analysis.VolumeWeight == 0 {
		return fmt.Errorf("analysis score weights must not all be zero")
	}
	if c.Analysis.LookbackDays < 1 {
		return fmt.Errorf("analysis.lookback_days must be at least 1")
	}
	if c.Analysis.MinDataPoints < 2 {
		return fmt.Errorf("analysis.min_data_points must be at least 2")
	}

	if c.Forecast.MinNaiveData < 2 {
		return fmt.Errorf("forecast.min_naive_data must be at least 2")
	}
	if c.Forecast.MinLinearData < c.Forecast.MinNaiveData {
		return fmt.Errorf("forecast.min_linear_data must not be below forecast.min_naive_data")
	}
	if c.Forecast.NaiveWindow < 1 {
		return fmt.Errorf("forecast.naive_window must be at least 1")
	}

	if c.Cache.ReferenceTTL < time.Minute {
		return fmt.Errorf("cache.reference_ttl must be at least 1 minute")
	}
	if c.Cache.ResultTTL < time.Minute {
		return fmt.Errorf("cache.result_ttl must be at least 1 minute")
	}

	if c.Pipeline.IngestInterval < time.Minute {
		return fmt.Errorf("pipeline.ingest_interval must be at least 1 minute")
	}
	if c.Pipeline.AnalyzeInterval < time.Minute {
		return fmt.Errorf("pipeline.analyze_interval must be at least 1 minute")
	}
	if c.Pipeline.ForecastInterval < time.Minute {
		return fmt.Errorf("pipeline.forecast_interval must be at least 1 minute")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
