// Package output provides utilities for formatting and displaying forecast
// reports.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/iwvelando/premium-forecast/internal/forecast"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/format"
	"github.com/pterm/pterm"
)

// MonthLayout renders forecast months ("Mar-2026").
const MonthLayout = "Jan-2006"

// DisableColor turns off ANSI styling in every renderer.
func DisableColor() {
	color.NoColor = true
	pterm.DisableColor()
}

// Render writes report in the given output format.
func Render(w io.Writer, outputFormat string, report *forecast.Report) error {
	switch outputFormat {
	case constants.OutputFormatCSV:
		return CsvFormat(w, report)
	case constants.OutputFormatPretty, "":
		return PrettyFormat(w, report)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, report *forecast.Report) error {
	fmt.Fprintf(w, "Period: %s | Reference year: %d | Cutoff: %s\n",
		report.Cutoff.Format("01/2006"), report.ReferenceYear, report.Cutoff.Format(datetime.DayLayout))
	fmt.Fprintf(w, "Conservative adjustment: %s\n\n",
		format.Percent((report.ConservativeFactor-1)*constants.PercentageMultiplier))

	summary, err := SummaryTable(report)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "--- Summary by line (%s view) ---\n%s\n", report.View, summary)

	if total, ok := report.Line(constants.ConsolidatedLine); ok {
		fmt.Fprintf(w, "--- Consolidated forecast %d ---\n", report.ReferenceYear)
		produced := 0.0
		if n := len(total.Result.History); n > 0 {
			produced = total.Result.History[n-1].Cumulative
		}
		fmt.Fprintf(w, "Production to date: %s | Remaining projection: %s | Estimated close: %s\n",
			format.COP(produced), format.COP(total.AdjustedTotal()), format.COP(produced+total.AdjustedTotal()))
		table, err := ForecastTable(total)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, table)
		fmt.Fprintf(w, "SMAPE validation: %s (%s)\n\n", smapeText(total.Result.SMAPE), modelText(total.Result.Model))
	}

	if lf, ok := report.Line(report.PhaseLine); ok {
		fmt.Fprintf(w, "--- %s adjusted forecast ---\n", report.PhaseLine)
		table, err := AdjustmentTable(lf)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, table)
	}

	fmt.Fprintf(w, "--- Impact calendar %d ---\n%s\n\n", report.ReferenceYear, CalendarBox(report.Calendar))

	if len(report.Budget) > 0 {
		table, err := BudgetTable(report.Budget)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "--- Budget proposal %d ---\n%s\n", report.BudgetYear, table)
	}
	return nil
}

// CsvFormat outputs every forecast month of every line in comma-separated
// value format.
func CsvFormat(w io.Writer, report *forecast.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"line", "date", "forecast", "adjusted", "lower", "upper", "model", "smape"}); err != nil {
		return err
	}
	for _, lf := range report.Lines {
		for i, row := range lf.Result.Forecast {
			if err := cw.Write([]string{
				lf.Line,
				row.Date.Format(datetime.DateTimeLayout),
				amount(row.Monthly),
				amount(lf.Adjusted[i]),
				amount(row.Lower),
				amount(row.Upper),
				lf.Result.Model,
				amount(lf.Result.SMAPE),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func amount(v float64) string {
	return strconv.FormatFloat(format.Round(v, 2), 'f', 2, 64)
}

func smapeText(smape float64) string {
	return format.Percent(smape)
}

func modelText(model string) string {
	if model == "" {
		return "no model"
	}
	return model
}
