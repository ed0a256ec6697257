// Package api exposes the HTTP and websocket surface of the analyzer.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/cache"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/observability"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/orchestrator"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/reference"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// Options configures a Server.
type Options struct {
	ListenAddr string
	// APIKey guards mutating endpoints. Empty disables the guard.
	APIKey string
	// DefaultRegion is used when a request omits region_id.
	DefaultRegion int32
	Metrics       *observability.Metrics
}

// Server serves the REST API, the status websocket and metrics.
type Server struct {
	opts     Options
	analysis storage.AnalysisStore
	preds    storage.PredictionStore
	snaps    storage.SnapshotStore
	resolver *reference.Resolver
	results  *cache.Cache
	orch     *orchestrator.Orchestrator
	hub      *Hub

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the routes.
func NewServer(
	opts Options,
	analysis storage.AnalysisStore,
	preds storage.PredictionStore,
	snaps storage.SnapshotStore,
	resolver *reference.Resolver,
	results *cache.Cache,
	orch *orchestrator.Orchestrator,
	hub *Hub,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		opts:     opts,
		analysis: analysis,
		preds:    preds,
		snaps:    snaps,
		resolver: resolver,
		results:  results,
		orch:     orch,
		hub:      hub,
		engine:   engine,
	}

	engine.Use(s.requestMetrics())

	apiGroup := engine.Group("/api")
	{
		apiGroup.GET("/top-items", s.handleTopItems)
		apiGroup.GET("/item/:type_id", s.handleItemDetail)
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/regions", s.handleRegions)
		apiGroup.POST("/refresh", s.requireAPIKey(), s.handleRefresh)
	}

	engine.GET("/ws/status", s.handleStatusWS)
	engine.GET("/metrics", gin.WrapH(observability.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening on %s", s.opts.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != s.opts.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.opts.Metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) regionFromQuery(c *gin.Context) (int32, bool) {
	raw := c.Query("region_id")
	if raw == "" {
		return s.opts.DefaultRegion, true
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid region_id"})
		return 0, false
	}
	return int32(id), true
}
