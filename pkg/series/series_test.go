package series

import (
	"math"
	"testing"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/records"
)

func month(year int, m time.Month) time.Time {
	return datetime.Date(year, m, 1)
}

func assertStrictlyMonthly(t *testing.T, s Series) {
	t.Helper()
	for i := 1; i < len(s); i++ {
		if datetime.MonthIndex(s[i].Date)-datetime.MonthIndex(s[i-1].Date) != 1 {
			t.Fatalf("series is not strictly monthly at %s -> %s",
				s[i-1].Date.Format(datetime.DayLayout), s[i].Date.Format(datetime.DayLayout))
		}
	}
}

func TestRegularize(t *testing.T) {
	tests := []struct {
		name     string
		input    Series
		expected []float64
		first    time.Time
	}{
		{
			name:     "Empty",
			input:    nil,
			expected: []float64{},
		},
		{
			name: "Unsorted with duplicates",
			input: Series{
				{Date: month(2025, time.March), Value: 30},
				{Date: month(2025, time.January), Value: 10},
				{Date: month(2025, time.February), Value: 5},
				{Date: month(2025, time.February), Value: 15},
			},
			expected: []float64{10, 20, 30},
			first:    month(2025, time.January),
		},
		{
			name: "Interior gap interpolated",
			input: Series{
				{Date: month(2024, time.November), Value: 100},
				{Date: month(2025, time.February), Value: 400},
			},
			expected: []float64{100, 200, 300, 400},
			first:    month(2024, time.November),
		},
		{
			name: "Mid-month dates fold onto month start",
			input: Series{
				{Date: datetime.Date(2025, time.January, 17), Value: 1},
				{Date: datetime.Date(2025, time.January, 2), Value: 2},
			},
			expected: []float64{3},
			first:    month(2025, time.January),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Regularize(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("Regularize() returned %d points, expected %d", len(got), len(tt.expected))
			}
			assertStrictlyMonthly(t, got)
			for i, v := range tt.expected {
				if math.Abs(got[i].Value-v) > 1e-9 {
					t.Errorf("Regularize()[%d] = %v, expected %v", i, got[i].Value, v)
				}
			}
			if len(got) > 0 && !got[0].Date.Equal(tt.first) {
				t.Errorf("Regularize() starts at %s, expected %s", got[0].Date.Format(datetime.DayLayout), tt.first.Format(datetime.DayLayout))
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	start := month(2024, time.January)

	tests := []struct {
		name     string
		values   []float64
		refYear  int
		expected []float64
	}{
		{
			name:     "Trailing zeros in reference year removed",
			values:   []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 7, 0, 8, 0, 0},
			refYear:  2025,
			expected: []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 7, 0, 8},
		},
		{
			name:     "Zeros outside reference year untouched",
			values:   []float64{1, 0, 0},
			refYear:  2025,
			expected: []float64{1, 0, 0},
		},
		{
			name:     "No trailing zero",
			values:   []float64{0, 3, 4},
			refYear:  2024,
			expected: []float64{0, 3, 4},
		},
		{
			name:     "Reference year only zeros",
			values:   []float64{0, 0, 0},
			refYear:  2024,
			expected: []float64{},
		},
		{
			name:     "Reference year absent",
			values:   []float64{2, 0},
			refYear:  2030,
			expected: []float64{2, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(FromValues(start, tt.values), tt.refYear)
			if len(got) != len(tt.expected) {
				t.Fatalf("Sanitize() returned %v, expected %v", got.Values(), tt.expected)
			}
			assertStrictlyMonthly(t, got)
			for i, v := range tt.expected {
				if got[i].Value != v {
					t.Errorf("Sanitize()[%d] = %v, expected %v", i, got[i].Value, v)
				}
			}
		})
	}
}

func TestSanitizeKeepsMonthlyFrequencyWhenYearIsInterior(t *testing.T) {
	// 2024 ends in zeros but 2025 carries data, so the blanked months are
	// interior and refilled.
	s := FromValues(month(2024, time.October), []float64{10, 0, 0, 40})
	got := Sanitize(s, 2024)
	if len(got) != 4 {
		t.Fatalf("Sanitize() returned %d points, expected 4", len(got))
	}
	assertStrictlyMonthly(t, got)
	if got[1].Value != 20 || got[2].Value != 30 {
		t.Errorf("Sanitize() = %v, expected interpolated [10 20 30 40]", got.Values())
	}
}

func TestSanitizeDuplicatesMerged(t *testing.T) {
	s := Series{
		{Date: month(2025, time.January), Value: 1},
		{Date: month(2025, time.January), Value: 1},
		{Date: month(2025, time.February), Value: 3},
	}
	got := Sanitize(s, 2025)
	if len(got) != 2 || got[0].Value != 2 {
		t.Errorf("Sanitize() = %v, expected [2 3]", got.Values())
	}
}

func TestSplit(t *testing.T) {
	s := FromValues(month(2025, time.January), []float64{1, 2, 3, 4, 5, 6})

	tests := []struct {
		name        string
		cutoff      time.Time
		wantLen     int
		wantPartial bool
	}{
		{name: "Last day of month keeps it", cutoff: datetime.Date(2025, time.June, 30), wantLen: 6, wantPartial: false},
		{name: "Mid month excludes it", cutoff: datetime.Date(2025, time.June, 15), wantLen: 5, wantPartial: true},
		{name: "First day excludes it", cutoff: datetime.Date(2025, time.June, 1), wantLen: 5, wantPartial: true},
		{name: "Partial month beyond data", cutoff: datetime.Date(2025, time.July, 10), wantLen: 6, wantPartial: true},
		{name: "February end", cutoff: datetime.Date(2025, time.February, 28), wantLen: 6, wantPartial: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, partial, isPartial := Split(s, 2025, tt.cutoff)
			if len(train) != tt.wantLen {
				t.Errorf("Split() training length = %d, expected %d", len(train), tt.wantLen)
			}
			if isPartial != tt.wantPartial {
				t.Errorf("Split() partial flag = %v, expected %v", isPartial, tt.wantPartial)
			}
			if tt.wantPartial {
				if partial == nil || !partial.Equal(datetime.MonthStart(tt.cutoff)) {
					t.Errorf("Split() partial = %v, expected %s", partial, datetime.MonthStart(tt.cutoff).Format(datetime.DayLayout))
				}
				for _, p := range train {
					if p.Date.Equal(*partial) {
						t.Errorf("Split() kept the partial month in training")
					}
				}
			} else if partial != nil {
				t.Errorf("Split() partial = %v, expected nil", partial)
			}
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	train, partial, isPartial := Split(nil, 2025, datetime.Date(2025, time.June, 15))
	if len(train) != 0 || partial != nil || isPartial {
		t.Errorf("Split(empty) = (%v, %v, %v), expected (empty, nil, false)", train, partial, isPartial)
	}
}

func TestAggregate(t *testing.T) {
	recs := []records.Record{
		{Date: datetime.Date(2025, time.February, 1), Line: "A", Amount: records.Float(10)},
		{Date: datetime.Date(2025, time.January, 1), Line: "A", Amount: records.Float(5)},
		{Date: datetime.Date(2025, time.February, 1), Line: "A", Amount: nil},
		{Date: datetime.Date(2025, time.February, 1), Line: "A", Amount: records.Float(2.5)},
		{Line: "A", Amount: records.Float(1000)},
	}
	got := Aggregate(recs)
	if len(got) != 2 {
		t.Fatalf("Aggregate() returned %d points, expected 2", len(got))
	}
	if got[0].Value != 5 || got[1].Value != 12.5 {
		t.Errorf("Aggregate() = %v, expected [5 12.5]", got.Values())
	}
}

func TestSeriesHelpers(t *testing.T) {
	s := FromValues(month(2024, time.November), []float64{1, 2, 3, 4})

	if s.Sum() != 10 {
		t.Errorf("Sum() = %v, expected 10", s.Sum())
	}
	cum := s.Cumulative()
	if cum[3] != 10 || cum[1] != 3 {
		t.Errorf("Cumulative() = %v", cum)
	}
	if got := s.Year(2025); len(got) != 2 || got[0].Value != 3 {
		t.Errorf("Year(2025) = %v", got.Values())
	}
	last, ok := s.Last()
	if !ok || last.Value != 4 {
		t.Errorf("Last() = %v, %v", last, ok)
	}
	if _, ok := Series(nil).Last(); ok {
		t.Errorf("Last() on empty series reported ok")
	}
	if got := s.Between(month(2024, time.December), month(2025, time.January)); len(got) != 2 {
		t.Errorf("Between() returned %d points, expected 2", len(got))
	}
}

func TestFingerprint(t *testing.T) {
	a := FromValues(month(2025, time.January), []float64{1, 2, 3})
	b := FromValues(month(2025, time.January), []float64{1, 2, 3})
	c := FromValues(month(2025, time.January), []float64{1, 2, 4})
	d := FromValues(month(2025, time.February), []float64{1, 2, 3})

	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("identical series produced different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() || a.Fingerprint() == d.Fingerprint() {
		t.Errorf("different series produced the same fingerprint")
	}
}
