package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/internal/forecast"
	"github.com/iwvelando/premium-forecast/pkg/budget"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/format"
	"github.com/iwvelando/premium-forecast/pkg/phase"
	"github.com/pterm/pterm"
)

var (
	good = color.New(color.FgGreen, color.Bold).SprintFunc()
	near = color.New(color.FgYellow, color.Bold).SprintFunc()
	bad  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Execution at or above 100% is on target, above 95% is close.
func execution(pct float64) string {
	text := format.Percent(pct)
	switch {
	case pct >= 100:
		return good(text)
	case pct >= 95:
		return near(text)
	default:
		return bad(text)
	}
}

func signed(v float64, text string) string {
	if v >= 0 {
		return good(text)
	}
	return bad(text)
}

// A remaining amount at or below zero means the budget is met.
func remaining(v float64) string {
	if v <= 0 {
		return good(format.COP(v))
	}
	return bad(format.COP(v))
}

func render(data pterm.TableData) (string, error) {
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
}

func summaryHeader(view string) []string {
	switch view {
	case config.ViewMonth:
		return []string{"Line", "Previous", "Actual", "Budget", "Remaining", "% Exec.", "Forecast (month)",
			"Forecast exec.", "Growth Fc (COP)", "Growth Fc (%)", "Req/day Fc", "Req/day Budget"}
	case config.ViewCumulative:
		return []string{"Line", "Previous (YTD)", "Actual (YTD)", "Budget (YTD)", "Remaining", "% Exec.",
			"Forecast (YTD + month)", "Forecast exec.", "Growth Fc (COP)", "Growth Fc (%)"}
	default:
		return []string{"Line", "Previous (year)", "Actual (YTD)", "Budget (annual)", "Remaining", "% Exec.",
			"Forecast (close)", "Forecast exec.", "Growth Fc (COP)", "Growth Fc (%)"}
	}
}

// SummaryTable renders the per-line summary of report.
func SummaryTable(report *forecast.Report) (string, error) {
	data := pterm.TableData{summaryHeader(report.View)}
	for _, lf := range report.Lines {
		s := lf.Summary
		row := []string{
			lf.Line,
			format.COP(s.Previous),
			format.COP(s.Actual),
			format.COP(s.Budget),
			remaining(s.Remaining),
			execution(s.Execution),
			format.COP(s.Forecast),
			execution(s.ForecastExecution),
			signed(s.GrowthPercent, format.COP(s.Growth)),
			signed(s.GrowthPercent, format.Percent(s.GrowthPercent)),
		}
		if report.View == config.ViewMonth {
			row = append(row, format.COP(s.RequiredPerDay), format.COP(s.BudgetPerDay))
		}
		data = append(data, row)
	}
	return render(data)
}

// ForecastTable renders the monthly forecast of a line with its interval.
func ForecastTable(lf forecast.LineForecast) (string, error) {
	data := pterm.TableData{{"Month", "Forecast", "Lower", "Upper", "Cumulative"}}
	for _, row := range lf.Result.Forecast {
		data = append(data, []string{
			row.Date.Format(MonthLayout),
			format.COP(row.Monthly),
			format.COP(row.Lower),
			format.COP(row.Upper),
			format.COP(row.Cumulative),
		})
	}
	return render(data)
}

// AdjustmentTable compares the model forecast of a line with its adjusted
// forecast.
func AdjustmentTable(lf forecast.LineForecast) (string, error) {
	data := pterm.TableData{{"Month", "Forecast", "Adjusted", "Difference"}}
	for i, row := range lf.Result.Forecast {
		diff := lf.Adjusted[i] - row.Monthly
		data = append(data, []string{
			row.Date.Format(MonthLayout),
			format.COP(row.Monthly),
			format.COP(lf.Adjusted[i]),
			signed(diff, format.COP(diff)),
		})
	}
	return render(data)
}

// CalendarBox draws the impact calendar as a fixed-width text box.
func CalendarBox(rows []phase.ImpactRow) string {
	var b strings.Builder
	b.WriteString("┌─────────────┬──────────────────────┬──────────┬─────────────────────┐\n")
	b.WriteString("│    Month    │        Phase         │  Factor  │       Impact        │\n")
	b.WriteString("├─────────────┼──────────────────────┼──────────┼─────────────────────┤\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "│ %-11s │ %-20s │ %-8s │ %-19s │\n",
			truncate(r.Month.Format("Jan 2006"), 11),
			truncate(r.Tag.Title(), 20),
			truncate(format.Factor(r.Factor), 8),
			truncate(r.Impact, 19),
		)
	}
	b.WriteString("└─────────────┴──────────────────────┴──────────┴─────────────────────┘")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// CalendarTable renders the impact rows with their descriptions.
func CalendarTable(rows []phase.ImpactRow) (string, error) {
	data := pterm.TableData{{"Month", "Phase", "Factor", "Impact", "Description"}}
	for _, r := range rows {
		data = append(data, []string{
			r.Month.Format("January 2006"),
			r.Tag.Title(),
			format.Factor(r.Factor),
			r.Impact,
			r.Description,
		})
	}
	return render(data)
}

// CalendarCSV writes the impact rows in comma-separated value format.
func CalendarCSV(w io.Writer, rows []phase.ImpactRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "phase", "factor", "impact", "description"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Month.Format(datetime.DateTimeLayout),
			string(r.Tag),
			amount(r.Factor),
			r.Impact,
			r.Description,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BudgetTable renders budget rows followed by their totals.
func BudgetTable(rows []budget.Row) (string, error) {
	data := pterm.TableData{{"Line", "Budget base", "IPC", "Budget adjusted", "Model"}}
	for _, r := range rows {
		data = append(data, []string{
			r.Line,
			format.COP(r.Base),
			format.Percent(r.IPCPercent),
			format.COP(r.Adjusted),
			r.Model,
		})
	}
	base, adjusted := budget.Totals(rows)
	data = append(data, []string{"TOTAL", format.COP(base), "", format.COP(adjusted), ""})
	return render(data)
}

// BudgetCSV writes budget rows in comma-separated value format.
func BudgetCSV(w io.Writer, rows []budget.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"line", "base", "ipc_percent", "adjusted", "model"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Line,
			amount(r.Base),
			amount(r.IPCPercent),
			amount(r.Adjusted),
			r.Model,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
