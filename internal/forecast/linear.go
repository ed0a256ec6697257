package forecast

import "fmt"

// LinearModel fits y = a + b*x by ordinary least squares over day
// indices 0..n-1.
type LinearModel struct {
	intercept float64
	slope     float64
	n         int
}

// NewLinearModel creates an untrained LinearModel.
func NewLinearModel() *LinearModel {
	return &LinearModel{}
}

var _ Model = (*LinearModel)(nil)

// Fit trains the regression on the series.
func (m *LinearModel) Fit(prices []float64) error {
	n := len(prices)
	if n < 2 {
		return fmt.Errorf("%w: %d points", ErrInsufficientHistory, n)
	}

	mx := float64(n-1) / 2
	var my float64
	for _, y := range prices {
		my += y
	}
	my /= float64(n)

	var sxy, sxx float64
	for i, y := range prices {
		dx := float64(i) - mx
		sxy += dx * (y - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return fmt.Errorf("%w: degenerate series", ErrTraining)
	}

	m.slope = sxy / sxx
	m.intercept = my - m.slope*mx
	m.n = n
	return nil
}

// Predict extrapolates the fitted line.
func (m *LinearModel) Predict(stepsAhead int) float64 {
	x := float64(m.n - 1 + stepsAhead)
	return m.intercept + m.slope*x
}

// Version identifies the model.
func (m *LinearModel) Version() string {
	return "ols-v1"
}
