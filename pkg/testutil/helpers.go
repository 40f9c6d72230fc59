// Package testutil provides common utility functions for testing.
package testutil

import (
	"math"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"github.com/iwvelando/premium-forecast/pkg/series"
)

// MonthlyRecords builds one record per month for line, starting at start.
func MonthlyRecords(line string, start time.Time, amounts ...float64) []records.Record {
	start = datetime.MonthStart(start)
	out := make([]records.Record, len(amounts))
	for i, a := range amounts {
		out[i] = records.Record{
			Date:   datetime.AddMonths(start, i),
			Line:   line,
			Amount: records.Float(a),
		}
	}
	return out
}

// WithBudget sets the same monthly budget on every record of year.
func WithBudget(recs []records.Record, year int, monthly float64) []records.Record {
	out := make([]records.Record, len(recs))
	copy(out, recs)
	for i := range out {
		if out[i].Date.Year() == year {
			out[i].Budget = records.Float(monthly)
		}
	}
	return out
}

// SeasonalAmounts returns months of production around base with a yearly
// cycle and a gentle upward trend.
func SeasonalAmounts(months int, base float64) []float64 {
	out := make([]float64, months)
	for i := range out {
		season := 1 + 0.2*math.Sin(2*math.Pi*float64(i%12)/12)
		trend := 1 + 0.01*float64(i)
		out[i] = base * season * trend
	}
	return out
}

// ConstantAmounts returns months copies of value.
func ConstantAmounts(months int, value float64) []float64 {
	out := make([]float64, months)
	for i := range out {
		out[i] = value
	}
	return out
}

// Series builds a monthly series starting at start.
func Series(start time.Time, values ...float64) series.Series {
	return series.FromValues(start, values)
}

// FindRecord returns the first record of line dated in month, or nil.
func FindRecord(recs []records.Record, line string, month time.Time) *records.Record {
	month = datetime.MonthStart(month)
	for i := range recs {
		if recs[i].Line == line && recs[i].Date.Equal(month) {
			return &recs[i]
		}
	}
	return nil
}
