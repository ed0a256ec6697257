// Package analysis derives profitability and trend metrics from daily
// market buckets.
package analysis

import (
	"math"
	"sort"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// pearson computes the Pearson correlation coefficient, or nil when
// either series is constant or the series are shorter than minPoints.
func pearson(xs, ys []float64, minPoints int) *float64 {
	n := len(xs)
	if n != len(ys) || n < minPoints {
		return nil
	}

	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return nil
	}
	r := sxy / math.Sqrt(sxx*syy)
	return &r
}

// linearSlope fits y = a + b*x by ordinary least squares over x = 0..n-1
// and returns b. A series shorter than 2 points has no slope.
func linearSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}

	mx := float64(n-1) / 2
	my := mean(ys)
	var sxy, sxx float64
	for i, y := range ys {
		dx := float64(i) - mx
		sxy += dx * (y - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0
	}
	return sxy / sxx
}

// coefficientOfVariation is stddev divided by mean, zero when the mean
// is not positive.
func coefficientOfVariation(xs []float64) float64 {
	m := mean(xs)
	if m <= 0 {
		return 0
	}
	return stddev(xs) / m
}

// classifyTrend compares the per-day OLS slope, relative to the mean
// price, against the noise threshold.
func classifyTrend(prices []float64, threshold float64) domain.TrendDirection {
	m := mean(prices)
	if m <= 0 {
		return domain.TrendFlat
	}
	relative := linearSlope(prices) / m
	switch {
	case relative > threshold:
		return domain.TrendUp
	case relative < -threshold:
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

// rankNormalize maps values onto [0, 1] by rank: the smallest value
// gets 0, the largest 1, equal values share the same rank. A single
// value normalizes to 1.
func rankNormalize(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 1
		return out
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})

	denom := float64(n - 1)
	rank := 0
	for pos := 0; pos < n; pos++ {
		if pos > 0 && values[order[pos]] != values[order[pos-1]] {
			rank = pos
		}
		out[order[pos]] = float64(rank) / denom
	}
	return out
}
