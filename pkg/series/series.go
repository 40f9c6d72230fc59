// Package series holds the monthly premium series and the cleaning steps that
// run before a model is fitted.
package series

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/records"
)

// Point is one monthly observation. Date is a UTC month start.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a monthly series ordered by date.
type Series []Point

// FromValues builds a contiguous monthly series starting at start.
func FromValues(start time.Time, values []float64) Series {
	start = datetime.MonthStart(start)
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Point{Date: datetime.AddMonths(start, i), Value: v}
	}
	return s
}

// Aggregate sums raw records into a monthly series. Records without a usable
// date are discarded and missing amounts count as zero.
func Aggregate(recs []records.Record) Series {
	sums := make(map[time.Time]float64)
	for _, r := range recs {
		if !r.HasDate() {
			continue
		}
		sums[datetime.MonthStart(r.Date)] += r.AmountOrZero()
	}
	s := make(Series, 0, len(sums))
	for date, v := range sums {
		s = append(s, Point{Date: date, Value: v})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	return s
}

// Values returns the observation values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Dates returns the observation dates in order.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Last returns the final point of the series.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Sum returns the total of all values.
func (s Series) Sum() float64 {
	total := 0.0
	for _, p := range s {
		total += p.Value
	}
	return total
}

// Cumulative returns the running total of the series.
func (s Series) Cumulative() []float64 {
	out := make([]float64, len(s))
	total := 0.0
	for i, p := range s {
		total += p.Value
		out[i] = total
	}
	return out
}

// Year returns the points that fall within year.
func (s Series) Year(year int) Series {
	var out Series
	for _, p := range s {
		if p.Date.Year() == year {
			out = append(out, p)
		}
	}
	return out
}

// Between returns the points with from <= date <= to.
func (s Series) Between(from, to time.Time) Series {
	var out Series
	for _, p := range s {
		if p.Date.Before(from) || p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Fingerprint identifies the series content.
func (s Series) Fingerprint() string {
	h := sha256.New()
	var buf [16]byte
	for _, p := range s {
		binary.LittleEndian.PutUint64(buf[:8], uint64(p.Date.Unix()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Value))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
