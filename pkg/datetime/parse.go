// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
)

const (
	// DateTimeLayout is the month format used in configuration files and in
	// rendered output.
	DateTimeLayout = constants.DateTimeLayout

	// DayLayout is the full date format.
	DayLayout = constants.DayLayout
)

// flexibleLayouts lists the accepted input layouts. Ambiguous numeric dates are
// read day first, as the premium exports are.
var flexibleLayouts = []string{
	DayLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	DateTimeLayout,
	"01/2006",
	"1/2006",
	"2006/01",
}

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseFlexible parses a date written in any of the layouts found in premium
// exports and returns it in UTC.
func ParseFlexible(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	for _, layout := range flexibleLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// OffsetDate returns the string-formatted date offset by the given number of
// months relative to the given date.
func OffsetDate(date, layout string, months int) (string, error) {
	t, err := time.Parse(layout, date)
	if err != nil {
		return date, err
	}
	return AddMonths(t, months).Format(layout), nil
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the number of days in t's month.
func LastDayOfMonth(t time.Time) int {
	return MonthStart(t).AddDate(0, 1, -1).Day()
}

// AddMonths shifts t by n calendar months keeping the day of month, clamped to
// the last day of the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	target := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, n, 0)
	day := t.Day()
	if last := LastDayOfMonth(target); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MonthIndex returns a monotonically increasing month number for t.
func MonthIndex(t time.Time) int {
	return t.Year()*constants.MonthsPerYear + int(t.Month()) - 1
}

// FromMonthIndex is the inverse of MonthIndex and returns a UTC month start.
func FromMonthIndex(index int) time.Time {
	year := index / constants.MonthsPerYear
	month := index%constants.MonthsPerYear + 1
	return Date(year, time.Month(month), 1)
}

// MonthsOfYear returns the twelve month starts of year.
func MonthsOfYear(year int) []time.Time {
	months := make([]time.Time, constants.MonthsPerYear)
	for i := range months {
		months[i] = Date(year, time.Month(i+1), 1)
	}
	return months
}

// BusinessDaysBetween counts the weekdays from start through end, both
// inclusive. It returns 0 when end is before start.
func BusinessDaysBetween(start, end time.Time) int {
	from := Date(start.Year(), start.Month(), start.Day())
	to := Date(end.Year(), end.Month(), end.Day())
	if to.Before(from) {
		return 0
	}
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// MonthEnd returns midnight UTC on the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), LastDayOfMonth(t))
}
