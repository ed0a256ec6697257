// Package forecast produces next-day price predictions from daily
// bucket history. Model choice degrades with data volume: a regression
// when history is deep enough, a moving average when thin, nothing
// below the floor.
package forecast

import "errors"

// Errors reported by models and the forecaster.
var (
	// ErrInsufficientHistory signals too few buckets to fit any model.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrTraining signals a model failed to fit on otherwise
	// sufficient data.
	ErrTraining = errors.New("model training failed")
)

// Model fits a daily price series and extrapolates it.
type Model interface {
	// Fit trains on the series, oldest first.
	Fit(prices []float64) error
	// Predict extrapolates the fitted series stepsAhead days past its
	// end.
	Predict(stepsAhead int) float64
	// Version identifies the model in stored predictions.
	Version() string
}
