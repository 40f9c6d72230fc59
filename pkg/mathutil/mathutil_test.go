package mathutil

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"Round up at midpoint", 1.235, 1.24},
		{"Round down below midpoint", 1.234, 1.23},
		{"No rounding needed", 1.23, 1.23},
		{"Large number", 12345.678, 12345.68},
		{"Negative number", -1.236, -1.24},
		{"Zero", 0.0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Round(tt.input)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("Round(%v) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClipMin(t *testing.T) {
	values := []float64{-3, 0, 2.5, math.NaN(), -0.0001}
	got := ClipMin(values, 0)
	expected := []float64{0, 0, 2.5, 0, 0}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("ClipMin()[%d] = %v, expected %v", i, got[i], expected[i])
		}
	}
}

func TestMeanAndSum(t *testing.T) {
	if got := Sum([]float64{1, 2, 3.5}); got != 6.5 {
		t.Errorf("Sum() = %v, expected 6.5", got)
	}
	if got := Mean([]float64{100, 200}); got != 150 {
		t.Errorf("Mean() = %v, expected 150", got)
	}
	if got := Mean(nil); !math.IsNaN(got) {
		t.Errorf("Mean(nil) = %v, expected NaN", got)
	}
}

func TestLog1pExpm1RoundTrip(t *testing.T) {
	values := []float64{0, 1, 1500000, 3.25}
	back := Expm1(Log1p(values))
	for i := range values {
		if !WithinTolerance(back[i], values[i], 1e-6*math.Max(1, values[i])) {
			t.Errorf("Expm1(Log1p(%v)) = %v", values[i], back[i])
		}
	}
}

func TestAllEqual(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected bool
	}{
		{"Empty", nil, true},
		{"Single", []float64{4}, true},
		{"Constant", []float64{7, 7, 7}, true},
		{"Varying", []float64{7, 7, 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllEqual(tt.values); got != tt.expected {
				t.Errorf("AllEqual(%v) = %v, expected %v", tt.values, got, tt.expected)
			}
		})
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{1, -2, 0}) {
		t.Error("AllFinite() = false for finite values")
	}
	if AllFinite([]float64{1, math.Inf(1)}) {
		t.Error("AllFinite() = true with +Inf")
	}
	if AllFinite([]float64{math.NaN()}) {
		t.Error("AllFinite() = true with NaN")
	}
}

func TestPercentHelpers(t *testing.T) {
	if got := PercentToFactor(-5); !WithinTolerance(got, 0.95, 1e-12) {
		t.Errorf("PercentToFactor(-5) = %v, expected 0.95", got)
	}
	if got := CalculatePercentage(50, 200); got != 25 {
		t.Errorf("CalculatePercentage(50, 200) = %v, expected 25", got)
	}
	if got := CalculatePercentage(50, 0); got != 0 {
		t.Errorf("CalculatePercentage(50, 0) = %v, expected 0", got)
	}
	if got := Growth(110, 100); !WithinTolerance(got, 10, 1e-9) {
		t.Errorf("Growth(110, 100) = %v, expected 10", got)
	}
	if got := Growth(110, 0); got != 0 {
		t.Errorf("Growth(110, 0) = %v, expected 0", got)
	}
}
