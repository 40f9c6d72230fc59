package forecast

import (
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/mathutil"
	"github.com/iwvelando/premium-forecast/pkg/records"
)

// Summary compares production, budget and forecast of a line for one view.
//
// In the month view the figures cover the cutoff month and Previous is the
// same month a year earlier. In the year view Actual is the year to date,
// Budget the full-year budget, Forecast the estimated close and Previous the
// whole previous year. In the cumulative view every figure runs from January
// through the cutoff month and Forecast is the closed months plus the
// cutoff-month forecast.
type Summary struct {
	View              string  `json:"view"`
	Previous          float64 `json:"previous"`
	Actual            float64 `json:"actual"`
	Budget            float64 `json:"budget"`
	Remaining         float64 `json:"remaining"`
	Execution         float64 `json:"execution"`
	Forecast          float64 `json:"forecast"`
	ForecastExecution float64 `json:"forecastExecution"`
	Growth            float64 `json:"growth"`
	GrowthPercent     float64 `json:"growthPercent"`

	// Month view only.
	BusinessDaysLeft int     `json:"businessDaysLeft,omitempty"`
	RequiredPerDay   float64 `json:"requiredPerDay,omitempty"`
	BudgetPerDay     float64 `json:"budgetPerDay,omitempty"`
}

type monthlyTotals struct {
	amount map[time.Time]float64
	budget map[time.Time]float64
}

func totals(recs []records.Record) monthlyTotals {
	t := monthlyTotals{
		amount: make(map[time.Time]float64),
		budget: make(map[time.Time]float64),
	}
	for _, r := range recs {
		if !r.HasDate() {
			continue
		}
		m := datetime.MonthStart(r.Date)
		t.amount[m] += r.AmountOrZero()
		t.budget[m] += r.BudgetOrZero()
	}
	return t
}

// sum adds the amounts and budgets of year for months in [from, to].
func (t monthlyTotals) sum(year int, from, to time.Month) (amount, budget float64) {
	for m := from; m <= to; m++ {
		d := datetime.Date(year, m, 1)
		amount += t.amount[d]
		budget += t.budget[d]
	}
	return amount, budget
}

// Summarize builds the summary of view from raw records and the adjusted
// forecast. Records must already be limited to the cutoff month.
func Summarize(view string, refYear int, cutoff time.Time, recs []records.Record, dates []time.Time, forecast []float64) Summary {
	t := totals(recs)
	cutoffMonth := datetime.MonthStart(cutoff)
	month := cutoff.Month()

	// The cutoff month is forecast when it was excluded as partial; a closed
	// month contributes its actual production.
	monthFigure := t.amount[datetime.Date(refYear, month, 1)]
	for i, d := range dates {
		if d.Equal(datetime.Date(refYear, month, 1)) {
			monthFigure = forecast[i]
			break
		}
	}

	s := Summary{View: view}
	switch view {
	case config.ViewMonth:
		s.Previous, _ = t.sum(refYear-1, month, month)
		s.Actual, s.Budget = t.sum(refYear, month, month)
		s.Forecast = monthFigure
		s.Remaining = s.Budget - s.Actual

		monthEnd := datetime.MonthEnd(cutoffMonth)
		s.BusinessDaysLeft = datetime.BusinessDaysBetween(cutoff, monthEnd)
		if s.BusinessDaysLeft > 0 {
			s.RequiredPerDay = s.Remaining / float64(s.BusinessDaysLeft)
		}
		if total := datetime.BusinessDaysBetween(cutoffMonth, monthEnd); total > 0 {
			s.BudgetPerDay = s.Budget / float64(total)
		}

	case config.ViewCumulative:
		s.Previous, _ = t.sum(refYear-1, time.January, month)
		s.Actual, s.Budget = t.sum(refYear, time.January, month)
		closed, _ := t.sum(refYear, time.January, month-1)
		s.Forecast = closed + monthFigure
		s.Remaining = s.Budget - s.Forecast

	default:
		s.Previous, _ = t.sum(refYear-1, time.January, time.December)
		s.Actual, s.Budget = t.sum(refYear, time.January, time.December)

		// Months before the first forecast month are closed.
		estimated := 0.0
		first := time.Time{}
		if len(dates) > 0 {
			first = dates[0]
		}
		for m := time.January; m <= time.December; m++ {
			d := datetime.Date(refYear, m, 1)
			if first.IsZero() || d.Before(first) {
				estimated += t.amount[d]
			}
		}
		for i, d := range dates {
			if d.Year() == refYear {
				estimated += forecast[i]
			}
		}
		s.Forecast = estimated
		s.Remaining = s.Budget - s.Actual
	}

	if s.Budget > 0 {
		s.Execution = mathutil.CalculatePercentage(s.Actual, s.Budget)
		s.ForecastExecution = mathutil.CalculatePercentage(s.Forecast, s.Budget)
	}
	s.Growth = s.Forecast - s.Previous
	s.GrowthPercent = mathutil.Growth(s.Forecast, s.Previous)
	return s
}
