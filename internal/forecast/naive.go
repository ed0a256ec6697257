package forecast

import "fmt"

// NaiveModel predicts the average of the most recent window of the
// series. It is the fallback when history is too thin for regression.
type NaiveModel struct {
	window  int
	average float64
}

// NewNaiveModel creates a NaiveModel averaging the last window points.
func NewNaiveModel(window int) *NaiveModel {
	if window < 1 {
		window = 7
	}
	return &NaiveModel{window: window}
}

var _ Model = (*NaiveModel)(nil)

// Fit computes the trailing window average.
func (m *NaiveModel) Fit(prices []float64) error {
	if len(prices) == 0 {
		return fmt.Errorf("%w: empty series", ErrInsufficientHistory)
	}

	start := len(prices) - m.window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, p := range prices[start:] {
		sum += p
	}
	m.average = sum / float64(len(prices)-start)
	return nil
}

// Predict returns the window average regardless of horizon.
func (m *NaiveModel) Predict(_ int) float64 {
	return m.average
}

// Version identifies the model.
func (m *NaiveModel) Version() string {
	return "naive-v1"
}
