// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	SnapshotRowsWritten prometheus.Counter
	SnapshotRowsDropped prometheus.Counter
	HistoryDaysFetched  prometheus.Counter
	SourceErrors        *prometheus.CounterVec

	// Pipeline metrics
	StageRunsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	ItemsAnalyzed  prometheus.Counter
	ItemsPredicted prometheus.Counter
	ItemsSkipped   *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses prometheus.Counter

	// API metrics
	HTTPRequestDuration *prometheus.HistogramVec
	WSClientsConnected  prometheus.Gauge

	// Health metrics
	LastSuccessfulStage *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "eve_market_analyzer"
	}

	return &Metrics{
		SnapshotRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "snapshot_rows_written_total",
			Help:      "Total number of snapshot rows written",
		}),
		SnapshotRowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "snapshot_rows_dropped_total",
			Help:      "Total number of malformed source rows dropped",
		}),
		HistoryDaysFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "history_days_fetched_total",
			Help:      "Total number of daily history exports fetched",
		}),
		SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_errors_total",
			Help:      "Total number of upstream source errors",
		}, []string{"source"}),

		StageRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total number of stage runs by terminal status",
		}, []string{"stage", "status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage"}),
		ItemsAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_analyzed_total",
			Help:      "Total number of items analyzed",
		}),
		ItemsPredicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_predicted_total",
			Help:      "Total number of items with a stored prediction",
		}),
		ItemsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_skipped_total",
			Help:      "Total number of items skipped by a stage",
		}, []string{"stage"}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of full cache misses",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		WSClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_clients_connected",
			Help:      "Number of connected status websocket clients",
		}),

		LastSuccessfulStage: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_stage_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run per stage",
		}, []string{"stage"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
