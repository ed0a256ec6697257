package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/cache"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// TopItem is one row of the ranked profitability listing.
type TopItem struct {
	TypeID                 int32                 `json:"type_id"`
	Name                   string                `json:"name"`
	BuyPrice               float64               `json:"buy_price"`
	SellPrice              float64               `json:"sell_price"`
	ProfitPerUnit          float64               `json:"profit_per_unit"`
	ROIPercent             *float64              `json:"roi_percent"`
	PriceVolumeCorrelation *float64              `json:"price_volume_correlation"`
	ProfitScore            float64               `json:"profit_score"`
	TrendDirection         domain.TrendDirection `json:"trend_direction"`
	Volatility             float64               `json:"volatility"`
	AvgDailyVolume         float64               `json:"avg_daily_volume"`
	PredictedBuyPrice      *float64              `json:"predicted_buy_price,omitempty"`
	PredictedSellPrice     *float64              `json:"predicted_sell_price,omitempty"`
	ModelVersion           string                `json:"model_version,omitempty"`
}

func (s *Server) handleTopItems(c *gin.Context) {
	regionID, ok := s.regionFromQuery(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var minVolume, minROI float64
	var filterVolume, filterROI bool
	if raw := c.Query("min_volume"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_volume"})
			return
		}
		minVolume, filterVolume = v, true
	}
	if raw := c.Query("min_roi"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_roi"})
			return
		}
		minROI, filterROI = v, true
	}

	key := fmt.Sprintf("top-items:%d", regionID)
	payload, err := s.results.GetOrLoad(c.Request.Context(), key, cache.ClassResult, func(ctx context.Context) ([]byte, error) {
		items, err := s.loadTopItems(ctx, regionID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(items)
	})
	if err != nil {
		logger.Error("top items for region %d: %v", regionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load top items"})
		return
	}

	var items []TopItem
	if err := json.Unmarshal(payload, &items); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt cached payload"})
		return
	}
	if filterVolume || filterROI {
		filtered := items[:0]
		for _, item := range items {
			if filterVolume && item.AvgDailyVolume < minVolume {
				continue
			}
			if filterROI && (item.ROIPercent == nil || *item.ROIPercent < minROI) {
				continue
			}
			filtered = append(filtered, item)
		}
		items = filtered
	}
	if len(items) > limit {
		items = items[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"region_id": regionID, "items": items})
}

// loadTopItems joins latest analysis rows with names and predictions.
// The full region listing is cached; limits are applied per request.
func (s *Server) loadTopItems(ctx context.Context, regionID int32) ([]TopItem, error) {
	results, err := s.analysis.GetLatest(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}

	preds, err := s.preds.GetLatest(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("latest predictions: %w", err)
	}
	predByType := make(map[int32]*domain.Prediction, len(preds))
	for _, p := range preds {
		predByType[p.TypeID] = p
	}

	items := make([]TopItem, 0, len(results))
	for _, r := range results {
		item := TopItem{
			TypeID:                 r.TypeID,
			Name:                   s.resolver.ResolveItem(ctx, r.TypeID).DisplayName(),
			BuyPrice:               r.BuyPrice,
			SellPrice:              r.SellPrice,
			ProfitPerUnit:          r.ProfitPerUnit,
			ROIPercent:             r.ROIPercent,
			PriceVolumeCorrelation: r.PriceVolumeCorrelation,
			ProfitScore:            r.ProfitScore,
			TrendDirection:         r.TrendDirection,
			Volatility:             r.Volatility,
			AvgDailyVolume:         r.AvgDailyVolume,
		}
		if p, ok := predByType[r.TypeID]; ok {
			item.PredictedBuyPrice = &p.PredictedBuyPrice
			item.PredictedSellPrice = &p.PredictedSellPrice
			item.ModelVersion = p.ModelVersion
		}
		items = append(items, item)
	}
	return items, nil
}

// AnalysisView is the wire form of an analysis row.
type AnalysisView struct {
	AsOf                   time.Time             `json:"as_of"`
	BuyPrice               float64               `json:"buy_price"`
	SellPrice              float64               `json:"sell_price"`
	ProfitPerUnit          float64               `json:"profit_per_unit"`
	ROIPercent             *float64              `json:"roi_percent"`
	PriceVolumeCorrelation *float64              `json:"price_volume_correlation"`
	ProfitScore            float64               `json:"profit_score"`
	TrendDirection         domain.TrendDirection `json:"trend_direction"`
	Volatility             float64               `json:"volatility"`
	AvgDailyVolume         float64               `json:"avg_daily_volume"`
}

func newAnalysisView(r *domain.AnalysisResult) *AnalysisView {
	return &AnalysisView{
		AsOf:                   r.AsOf,
		BuyPrice:               r.BuyPrice,
		SellPrice:              r.SellPrice,
		ProfitPerUnit:          r.ProfitPerUnit,
		ROIPercent:             r.ROIPercent,
		PriceVolumeCorrelation: r.PriceVolumeCorrelation,
		ProfitScore:            r.ProfitScore,
		TrendDirection:         r.TrendDirection,
		Volatility:             r.Volatility,
		AvgDailyVolume:         r.AvgDailyVolume,
	}
}

// HistoryPoint is one day bucket of an item's price history.
type HistoryPoint struct {
	Date         time.Time `json:"date"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	AveragePrice float64   `json:"average_price"`
	Volume       int64     `json:"volume"`
	OrderCount   int64     `json:"order_count"`
}

// PredictionView is the wire form of a prediction row.
type PredictionView struct {
	TargetDate         time.Time `json:"target_date"`
	PredictedBuyPrice  float64   `json:"predicted_buy_price"`
	PredictedSellPrice float64   `json:"predicted_sell_price"`
	ModelVersion       string    `json:"model_version"`
	CreatedAt          time.Time `json:"created_at"`
}

// ItemDetail is the full per-item view: metadata, current analysis,
// price history and the latest prediction.
type ItemDetail struct {
	TypeID      int32           `json:"type_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	IconRef     *string         `json:"icon_ref,omitempty"`
	RegionID    int32           `json:"region_id"`
	Analysis    *AnalysisView   `json:"analysis,omitempty"`
	History     []HistoryPoint  `json:"history"`
	Prediction  *PredictionView `json:"prediction,omitempty"`
}

func (s *Server) handleItemDetail(c *gin.Context) {
	rawID := c.Param("type_id")
	typeID64, err := strconv.ParseInt(rawID, 10, 32)
	if err != nil || typeID64 <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type_id"})
		return
	}
	typeID := int32(typeID64)

	regionID, ok := s.regionFromQuery(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	item := s.resolver.ResolveItem(ctx, typeID)
	detail := ItemDetail{
		TypeID:      typeID,
		Name:        item.DisplayName(),
		Description: item.Description,
		IconRef:     item.IconRef,
		RegionID:    regionID,
	}

	analysis, err := s.analysis.GetLatestByType(ctx, typeID, regionID)
	switch {
	case err == nil:
		detail.Analysis = newAnalysisView(analysis)
	case errors.Is(err, storage.ErrNotFound):
		// Item has never been analyzed; history may still exist.
	default:
		logger.Error("analysis for type %d: %v", typeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis"})
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	history, err := s.snaps.GetHistory(ctx, typeID, regionID, since)
	if err != nil {
		logger.Error("history for type %d: %v", typeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	detail.History = make([]HistoryPoint, 0, len(history))
	for _, snap := range history {
		detail.History = append(detail.History, HistoryPoint{
			Date:         snap.Date,
			BuyPrice:     snap.BuyPrice,
			SellPrice:    snap.SellPrice,
			AveragePrice: snap.AveragePrice,
			Volume:       snap.Volume,
			OrderCount:   snap.OrderCount,
		})
	}

	if detail.Analysis == nil && len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown item"})
		return
	}

	pred, err := s.preds.GetByType(ctx, typeID, regionID)
	switch {
	case err == nil:
		detail.Prediction = &PredictionView{
			TargetDate:         pred.TargetDate,
			PredictedBuyPrice:  pred.PredictedBuyPrice,
			PredictedSellPrice: pred.PredictedSellPrice,
			ModelVersion:       pred.ModelVersion,
			CreatedAt:          pred.CreatedAt,
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		logger.Error("prediction for type %d: %v", typeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load prediction"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// RunView is the wire form of a pipeline run.
type RunView struct {
	RunID        string           `json:"run_id"`
	Stage        domain.Stage     `json:"stage"`
	Status       domain.RunStatus `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Error        string           `json:"error,omitempty"`
	RowsWritten  int              `json:"rows_written"`
	RowsDropped  int              `json:"rows_dropped"`
	ItemsSkipped int              `json:"items_skipped"`
}

func newRunView(run domain.PipelineRun) RunView {
	return RunView{
		RunID:        run.RunID,
		Stage:        run.Stage,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Error:        run.Error,
		RowsWritten:  run.RowsWritten,
		RowsDropped:  run.RowsDropped,
		ItemsSkipped: run.ItemsSkipped,
	}
}

// StageView is one stage's entry in the status surface.
type StageView struct {
	Stage     domain.Stage `json:"stage"`
	Running   bool         `json:"running"`
	LatestRun *RunView     `json:"latest_run,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.orch.Status(c.Request.Context())
	if err != nil {
		logger.Error("pipeline status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}

	stages := make([]StageView, 0, len(status))
	for _, st := range status {
		view := StageView{Stage: st.Stage, Running: st.Running}
		if st.LatestRun != nil {
			run := newRunView(*st.LatestRun)
			view.LatestRun = &run
		}
		stages = append(stages, view)
	}
	c.JSON(http.StatusOK, gin.H{"stages": stages})
}

// RegionView is the wire form of a tracked region.
type RegionView struct {
	RegionID int32  `json:"region_id"`
	Name     string `json:"name"`
}

func (s *Server) handleRegions(c *gin.Context) {
	regions, err := s.resolver.ListRegions(c.Request.Context())
	if err != nil {
		logger.Error("list regions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load regions"})
		return
	}
	views := make([]RegionView, 0, len(regions))
	for _, r := range regions {
		views = append(views, RegionView{RegionID: r.RegionID, Name: r.Name})
	}
	c.JSON(http.StatusOK, gin.H{"regions": views})
}

func (s *Server) handleRefresh(c *gin.Context) {
	ctx := c.Request.Context()

	if raw := c.Query("stage"); raw != "" {
		stage := domain.Stage(raw)
		if !domain.ValidStage(stage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
			return
		}
		if c.Query("force") == "true" {
			if _, err := s.orch.ForceReset(ctx, stage); err != nil {
				logger.Error("force reset stage %s: %v", stage, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "force reset failed"})
				return
			}
		}
		run, started, err := s.orch.Trigger(ctx, stage)
		if err != nil {
			logger.Error("trigger stage %s: %v", stage, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run": newRunView(*run), "started": started})
		return
	}

	runs, err := s.orch.TriggerAll(ctx)
	if err != nil {
		logger.Error("trigger all stages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(*run))
	}
	c.JSON(http.StatusAccepted, gin.H{"runs": views})
}
