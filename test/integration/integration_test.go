package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/internal/datasource"
	"github.com/iwvelando/premium-forecast/internal/forecast"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/output"
	"github.com/iwvelando/premium-forecast/pkg/phase"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"go.uber.org/zap"
)

const testConfigPath = "../test_config.yaml"

// runPipeline loads the test configuration and records and computes the
// report exactly as the forecast command does.
func runPipeline(t testing.TB, opts ...forecast.Option) (*config.Configuration, []records.Record, *forecast.Report) {
	t.Helper()
	logger := zap.NewNop()

	conf, err := config.LoadConfiguration(testConfigPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if err := conf.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	src, err := datasource.New(logger, conf.Data)
	if err != nil {
		t.Fatalf("datasource.New() error = %v", err)
	}
	recs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	report, err := forecast.GetForecast(context.Background(), logger, *conf, recs, opts...)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	return conf, recs, report
}

func TestMainIntegrationBaseline(t *testing.T) {
	conf, recs, report := runPipeline(t)

	if len(recs) != 153 {
		t.Errorf("expected 153 records in the fixture, got %d", len(recs))
	}

	expectedLines := []string{"AUTOS", "FIANZAS", "SALUD", constants.ConsolidatedLine}
	if len(report.Lines) != len(expectedLines) {
		t.Fatalf("expected %d lines, got %d", len(expectedLines), len(report.Lines))
	}

	for i, name := range expectedLines {
		lf := report.Lines[i]
		if lf.Line != name {
			t.Errorf("line %d = %s, expected %s", i, lf.Line, name)
			continue
		}
		// The cutoff falls mid-March, so March is re-forecast and the
		// horizon runs through December.
		if lf.Partial == nil || !lf.Partial.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("%s: expected March 2026 as partial month, got %v", name, lf.Partial)
		}
		if lf.Steps != 10 || len(lf.Result.Forecast) != 10 || len(lf.Adjusted) != 10 {
			t.Fatalf("%s: expected 10 forecast months, got steps %d, %d rows, %d adjusted",
				name, lf.Steps, len(lf.Result.Forecast), len(lf.Adjusted))
		}
		if first := lf.Result.Forecast[0].Date; first.Month() != time.March || first.Year() != 2026 {
			t.Errorf("%s: forecast starts %s, expected 2026-03", name, first.Format("2006-01"))
		}
		if lf.Result.Model == "" {
			t.Errorf("%s: expected a fitted model", name)
		}
		for _, row := range lf.Result.Forecast {
			if row.Monthly < 0 || math.IsNaN(row.Monthly) {
				t.Errorf("%s: invalid forecast %v for %s", name, row.Monthly, row.Date.Format("2006-01"))
			}
		}
	}

	cal, err := conf.Calendar()
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	for i, name := range expectedLines {
		lf := report.Lines[i]
		for j, row := range lf.Result.Forecast {
			want := row.Monthly
			if name == "FIANZAS" {
				want *= cal.Classify(row.Date).Factor
			}
			if math.Abs(lf.Adjusted[j]-want) > constants.CurrencyTolerance {
				t.Errorf("%s %s: adjusted %v, expected %v", name, row.Date.Format("2006-01"), lf.Adjusted[j], want)
			}
		}
	}
	if cal.Classify(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)).Tag != phase.ActiveDisruption {
		t.Errorf("expected March 2026 to be in the active disruption")
	}

	// Year to date production of the consolidated line covers every record
	// from January through the cutoff month.
	ytd := 0.0
	for _, r := range recs {
		if r.Date.Year() == 2026 && r.Date.Month() <= time.March {
			ytd += r.AmountOrZero()
		}
	}
	total, _ := report.Line(constants.ConsolidatedLine)
	if math.Abs(total.Summary.Actual-ytd) > constants.CurrencyTolerance {
		t.Errorf("TOTAL actual = %v, expected %v", total.Summary.Actual, ytd)
	}
	if total.Summary.Previous <= 0 || total.Summary.Budget <= 0 || total.Summary.Forecast <= total.Summary.Actual {
		t.Errorf("unexpected TOTAL summary %+v", total.Summary)
	}

	if report.BudgetYear != 2027 || len(report.Budget) != 3 {
		t.Errorf("expected 3 budget rows for 2027, got %d for %d", len(report.Budget), report.BudgetYear)
	}
	for _, row := range report.Budget {
		if math.Abs(row.Adjusted-row.Base*1.052) > 1 {
			t.Errorf("%s: adjusted budget %v is not base %v plus 5.2%%", row.Line, row.Adjusted, row.Base)
		}
	}
}

func TestOutputFormats(t *testing.T) {
	output.DisableColor()
	_, _, report := runPipeline(t)

	var pretty bytes.Buffer
	if err := output.PrettyFormat(&pretty, report); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	for _, want := range []string{"Summary by line", "Consolidated forecast 2026", "FIANZAS adjusted forecast", "Dec-2026", "Budget proposal 2027"} {
		if !strings.Contains(pretty.String(), want) {
			t.Errorf("pretty output missing %q", want)
		}
	}

	var buf bytes.Buffer
	if err := output.CsvFormat(&buf, report); err != nil {
		t.Fatalf("CsvFormat() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV output is invalid: %v", err)
	}
	if len(rows) != 1+4*10 {
		t.Errorf("expected %d CSV rows, got %d", 1+4*10, len(rows))
	}
}

func TestDataConsistency(t *testing.T) {
	_, _, first := runPipeline(t)

	for run := 1; run < 3; run++ {
		_, _, report := runPipeline(t)
		for i, lf := range report.Lines {
			want := first.Lines[i]
			if lf.Line != want.Line || lf.Result.Model != want.Result.Model {
				t.Errorf("run %d, line %d: %s/%s differs from %s/%s",
					run, i, lf.Line, lf.Result.Model, want.Line, want.Result.Model)
				continue
			}
			for j := range lf.Adjusted {
				if lf.Adjusted[j] != want.Adjusted[j] {
					t.Errorf("run %d, %s month %d: %v != %v", run, lf.Line, j, lf.Adjusted[j], want.Adjusted[j])
				}
			}
		}
	}
}
