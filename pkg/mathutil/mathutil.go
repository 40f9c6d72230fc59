// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/premium-forecast/pkg/constants"
)

// Round rounds a value to two decimals, i.e. to represent real currency.
func Round(val float64) float64 {
	return math.Round(val*100) / 100
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// ClipMin replaces every value below floor with floor, in place, and returns
// the slice.
func ClipMin(values []float64, floor float64) []float64 {
	for i, v := range values {
		if v < floor || math.IsNaN(v) {
			values[i] = floor
		}
	}
	return values
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Mean returns the arithmetic mean of values, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return Sum(values) / float64(len(values))
}

// Log1p returns log(1+v) for every value.
func Log1p(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log1p(v)
	}
	return out
}

// Expm1 returns exp(v)-1 for every value.
func Expm1(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Expm1(v)
	}
	return out
}

// Scale multiplies every value by factor, in place, and returns the slice.
func Scale(values []float64, factor float64) []float64 {
	for i := range values {
		values[i] *= factor
	}
	return values
}

// AllEqual reports whether every value equals the first one.
func AllEqual(values []float64) bool {
	for _, v := range values[min(1, len(values)):] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// AllFinite reports whether no value is NaN or infinite.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PercentToFactor converts a percentage adjustment (e.g. -5) into a
// multiplicative factor (0.95).
func PercentToFactor(percent float64) float64 {
	return 1 + percent/constants.PercentageMultiplier
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * constants.PercentageMultiplier
}

// Growth returns the percentage change from previous to current, or zero when
// previous is not positive.
func Growth(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current/previous - 1) * constants.PercentageMultiplier
}
