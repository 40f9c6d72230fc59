package series

import (
	"math"
	"sort"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/datetime"
)

// Regularize sorts s, merges duplicate months by summing them and reindexes to
// a strict monthly frequency between the first and last known month. Interior
// gaps are filled by linear interpolation; nothing is produced outside the
// known range.
func Regularize(s Series) Series {
	if len(s) == 0 {
		return Series{}
	}

	sums := make(map[int]float64, len(s))
	for _, p := range s {
		if math.IsNaN(p.Value) {
			continue
		}
		sums[datetime.MonthIndex(p.Date)] += p.Value
	}
	if len(sums) == 0 {
		return Series{}
	}

	keys := make([]int, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	first, last := keys[0], keys[len(keys)-1]
	values := make([]float64, last-first+1)
	for i := range values {
		values[i] = math.NaN()
	}
	for k, v := range sums {
		values[k-first] = v
	}
	interpolateInside(values)

	out := make(Series, len(values))
	for i, v := range values {
		out[i] = Point{Date: datetime.FromMonthIndex(first + i), Value: v}
	}
	return out
}

// interpolateInside fills NaN runs bounded by known values on both sides.
func interpolateInside(values []float64) {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - values[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				values[j] = values[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
}

// Sanitize regularizes s and treats the contiguous run of exact zeros at the
// end of refYear as not yet reported. The result ends at the last known value.
func Sanitize(s Series, refYear int) Series {
	reg := Regularize(s)
	if len(reg) == 0 {
		return reg
	}

	values := reg.Values()
	lastInYear := -1
	for i, p := range reg {
		if p.Date.Year() == refYear {
			lastInYear = i
		}
	}
	for i := lastInYear; i >= 0 && reg[i].Date.Year() == refYear; i-- {
		if values[i] != 0 {
			break
		}
		values[i] = math.NaN()
	}

	end := len(values) - 1
	for end >= 0 && math.IsNaN(values[end]) {
		end--
	}
	if end < 0 {
		return Series{}
	}

	// Months blanked ahead of later data stay inside the range; refill them
	// so the result keeps a strict monthly frequency.
	values = values[:end+1]
	interpolateInside(values)

	out := make(Series, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out = append(out, Point{Date: reg[i].Date, Value: v})
	}
	return out
}

// Split separates the month still accumulating at cutoff from the training
// history. When cutoff falls before the last day of its month, that month is
// dropped and returned as the partial period. refYear does not affect the
// split.
func Split(s Series, refYear int, cutoff time.Time) (Series, *time.Time, bool) {
	reg := Regularize(s)
	if len(reg) == 0 {
		return reg, nil, false
	}

	month := datetime.MonthStart(cutoff)
	if cutoff.Day() >= datetime.LastDayOfMonth(month) {
		return reg, nil, false
	}

	train := make(Series, 0, len(reg))
	for _, p := range reg {
		if p.Date.Equal(month) {
			continue
		}
		train = append(train, p)
	}
	return train, &month, true
}
