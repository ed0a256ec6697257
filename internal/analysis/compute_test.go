package analysis

import (
	"math"
	"testing"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
)

func TestMean(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Fatalf("mean of empty = %v, want 0", got)
	}
	if got := mean([]float64{2, 4, 6}); got != 4 {
		t.Fatalf("mean = %v, want 4", got)
	}
}

func TestStddev(t *testing.T) {
	if got := stddev([]float64{5}); got != 0 {
		t.Fatalf("stddev of single point = %v, want 0", got)
	}
	got := stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := 2.138089935299395
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("stddev = %v, want %v", got, want)
	}
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	r := pearson(xs, ys, 5)
	if r == nil {
		t.Fatal("pearson returned nil for valid series")
	}
	if math.Abs(*r-1) > 1e-9 {
		t.Fatalf("pearson = %v, want 1", *r)
	}
}

func TestPearsonNegativeCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{10, 8, 6, 4, 2}
	r := pearson(xs, ys, 5)
	if r == nil || math.Abs(*r+1) > 1e-9 {
		t.Fatalf("pearson = %v, want -1", r)
	}
}

func TestPearsonInsufficientData(t *testing.T) {
	if r := pearson([]float64{1, 2}, []float64{3, 4}, 5); r != nil {
		t.Fatalf("pearson with 2 points = %v, want nil", *r)
	}
}

func TestPearsonConstantSeries(t *testing.T) {
	xs := []float64{5, 5, 5, 5, 5}
	ys := []float64{1, 2, 3, 4, 5}
	if r := pearson(xs, ys, 5); r != nil {
		t.Fatalf("pearson with constant series = %v, want nil", *r)
	}
}

func TestLinearSlope(t *testing.T) {
	if got := linearSlope([]float64{1, 3, 5, 7}); math.Abs(got-2) > 1e-9 {
		t.Fatalf("slope = %v, want 2", got)
	}
	if got := linearSlope([]float64{4}); got != 0 {
		t.Fatalf("slope of single point = %v, want 0", got)
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		threshold float64
		want      domain.TrendDirection
	}{
		{"rising", []float64{100, 110, 120, 130}, 0.01, domain.TrendUp},
		{"falling", []float64{130, 120, 110, 100}, 0.01, domain.TrendDown},
		{"flat", []float64{100, 100.1, 99.9, 100}, 0.01, domain.TrendFlat},
		{"noise below threshold", []float64{100, 100.5, 100.2, 100.8}, 0.01, domain.TrendFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyTrend(tt.prices, tt.threshold); got != tt.want {
				t.Fatalf("classifyTrend = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	if got := coefficientOfVariation([]float64{0, 0}); got != 0 {
		t.Fatalf("cv of zero mean = %v, want 0", got)
	}
	prices := []float64{90, 100, 110}
	want := stddev(prices) / 100
	if got := coefficientOfVariation(prices); math.Abs(got-want) > 1e-9 {
		t.Fatalf("cv = %v, want %v", got, want)
	}
}

func TestRankNormalize(t *testing.T) {
	got := rankNormalize([]float64{30, 10, 20})
	want := []float64{1, 0, 0.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("rankNormalize[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRankNormalizeTies(t *testing.T) {
	got := rankNormalize([]float64{10, 10, 20})
	if got[0] != got[1] {
		t.Fatalf("tied values got different ranks: %v vs %v", got[0], got[1])
	}
	if got[2] != 1 {
		t.Fatalf("max value rank = %v, want 1", got[2])
	}
}

func TestRankNormalizeSingle(t *testing.T) {
	got := rankNormalize([]float64{42})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("single value rank = %v, want [1]", got)
	}
}
