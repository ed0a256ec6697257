package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// Options configures a Forecaster.
type Options struct {
	// LookbackDays bounds the history window feeding the models.
	LookbackDays int
	// MinLinearData is the minimum history length for the regression
	// model.
	MinLinearData int
	// MinNaiveData is the minimum history length for the fallback
	// model; below it the item is skipped.
	MinNaiveData int
	// NaiveWindow is the trailing average window of the fallback.
	NaiveWindow int
}

// Stats summarizes one forecast pass.
type Stats struct {
	ItemsPredicted int
	ItemsSkipped   int
}

// Forecaster predicts next-day buy and sell prices for every item with
// history in a region. A training failure on one item keeps that
// item's previous prediction and never fails the pass.
type Forecaster struct {
	snapshots   storage.SnapshotStore
	predictions storage.PredictionStore
	opts        Options

	now func() time.Time
}

// NewForecaster creates a Forecaster.
func NewForecaster(snapshots storage.SnapshotStore, predictions storage.PredictionStore, opts Options) *Forecaster {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 30
	}
	if opts.MinLinearData <= 0 {
		opts.MinLinearData = 14
	}
	if opts.MinNaiveData < 2 {
		opts.MinNaiveData = 2
	}
	if opts.NaiveWindow <= 0 {
		opts.NaiveWindow = 7
	}
	return &Forecaster{
		snapshots:   snapshots,
		predictions: predictions,
		opts:        opts,
		now:         time.Now,
	}
}

// ForecastRegion runs one forecast pass over a region.
func (f *Forecaster) ForecastRegion(ctx context.Context, regionID int32) (*Stats, error) {
	latest, err := f.snapshots.GetLatest(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots for region %d: %w", regionID, err)
	}

	stats := &Stats{}
	now := f.now().UTC()
	since := domain.BucketDate(now).AddDate(0, 0, -f.opts.LookbackDays)

	var preds []*domain.Prediction
	for _, snap := range latest {
		history, err := f.snapshots.GetHistory(ctx, snap.TypeID, regionID, since)
		if err != nil {
			return stats, fmt.Errorf("history for type %d: %w", snap.TypeID, err)
		}

		pred, err := f.forecastItem(snap.TypeID, regionID, history, now)
		if err != nil {
			if errors.Is(err, ErrInsufficientHistory) {
				stats.ItemsSkipped++
				continue
			}
			if errors.Is(err, ErrTraining) {
				logger.Warn("training failed for type %d, keeping previous prediction: %v", snap.TypeID, err)
				stats.ItemsSkipped++
				continue
			}
			return stats, err
		}
		preds = append(preds, pred)
	}

	if err := f.predictions.Upsert(ctx, preds); err != nil {
		return stats, fmt.Errorf("upsert predictions: %w", err)
	}
	stats.ItemsPredicted = len(preds)
	logger.Info("forecast region %d: %d items predicted, %d skipped", regionID, stats.ItemsPredicted, stats.ItemsSkipped)
	return stats, nil
}

// forecastItem picks a model by data sufficiency, predicts the next
// day's mid price and spreads buy and sell around it by half the
// recent price deviation.
func (f *Forecaster) forecastItem(typeID, regionID int32, history []*domain.MarketSnapshot, now time.Time) (*domain.Prediction, error) {
	var mids []float64
	for _, h := range history {
		if mid := h.MidPrice(); mid > 0 {
			mids = append(mids, mid)
		}
	}

	model, err := f.selectModel(len(mids))
	if err != nil {
		return nil, err
	}
	if err := model.Fit(mids); err != nil {
		return nil, err
	}

	mid := model.Predict(1)
	if mid <= 0 {
		return nil, fmt.Errorf("%w: non-positive extrapolation", ErrTraining)
	}

	spread := 0.5 * sampleStddev(mids)
	buy := mid - spread
	if buy <= 0 {
		buy = mid * 0.5
	}

	targetDate := domain.BucketDate(now).AddDate(0, 0, 1)
	if n := len(history); n > 0 {
		targetDate = domain.BucketDate(history[n-1].Date).AddDate(0, 0, 1)
	}

	return &domain.Prediction{
		TypeID:             typeID,
		RegionID:           regionID,
		TargetDate:         targetDate,
		PredictedBuyPrice:  buy,
		PredictedSellPrice: mid + spread,
		ModelVersion:       model.Version(),
		CreatedAt:          now,
	}, nil
}

func (f *Forecaster) selectModel(points int) (Model, error) {
	switch {
	case points >= f.opts.MinLinearData:
		return NewLinearModel(), nil
	case points >= f.opts.MinNaiveData:
		return NewNaiveModel(f.opts.NaiveWindow), nil
	default:
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientHistory, points)
	}
}

func sampleStddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var m float64
	for _, x := range xs {
		m += x
	}
	m /= float64(n)

	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
