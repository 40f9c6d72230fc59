package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/finance"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"github.com/iwvelando/premium-forecast/pkg/series"
	"github.com/iwvelando/premium-forecast/pkg/testutil"
	"go.uber.org/zap"
)

func testConfiguration(t *testing.T, cutoff string) config.Configuration {
	t.Helper()
	conf := config.Configuration{
		Data:     config.DataConfig{Path: "unused.csv"},
		Forecast: config.ForecastConfig{Cutoff: cutoff, Workers: 2},
		Budget:   config.BudgetConfig{IPCAdjustment: 4.5},
		Phase: config.PhaseConfig{
			LineFactors: []config.LineFactor{{Line: "FIANZAS", Factor: 0.95}},
		},
	}
	if err := conf.NormalizeWithFixedTime(time.Now()); err != nil {
		t.Fatalf("NormalizeWithFixedTime() error = %v", err)
	}
	return conf
}

func sampleRecords() []records.Record {
	start := datetime.Date(2023, time.January, 1)
	recs := testutil.MonthlyRecords("AUTOS", start, testutil.ConstantAmounts(39, 100)...)
	recs = append(recs, testutil.MonthlyRecords("FIANZAS", start, testutil.ConstantAmounts(39, 1000)...)...)
	// A month after the cutoff must be ignored.
	recs = append(recs, testutil.MonthlyRecords("AUTOS", datetime.Date(2026, time.April, 1), 5000)...)
	return testutil.WithBudget(recs, 2026, 120)
}

func TestHorizon(t *testing.T) {
	train := series.FromValues(datetime.Date(2024, time.January, 1), testutil.ConstantAmounts(26, 1))
	march := datetime.Date(2026, time.March, 1)

	tests := []struct {
		name       string
		configured int
		train      series.Series
		partial    *time.Time
		refYear    int
		cutoff     time.Time
		expected   int
	}{
		{name: "Configured wins", configured: 3, train: train, refYear: 2026, expected: 3},
		{name: "Through December", train: train, partial: &march, refYear: 2026, expected: 10},
		{name: "Training ends in December", train: series.FromValues(datetime.Date(2024, time.January, 1), testutil.ConstantAmounts(24, 1)), refYear: 2026, expected: 12},
		{name: "Training already reaches December", train: series.FromValues(datetime.Date(2024, time.January, 1), testutil.ConstantAmounts(36, 1)), refYear: 2026, expected: 1},
		{name: "Empty training with partial month", partial: &march, refYear: 2026, expected: 10},
		{name: "Empty training without partial month", refYear: 2026, cutoff: datetime.Date(2026, time.June, 30), expected: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Horizon(tt.configured, tt.train, tt.partial, tt.refYear, tt.cutoff); got != tt.expected {
				t.Errorf("Horizon() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestUpToMonth(t *testing.T) {
	recs := testutil.MonthlyRecords("AUTOS", datetime.Date(2026, time.February, 1), 1, 2, 3)
	recs = append(recs, records.Record{Line: "AUTOS", Amount: records.Float(9)})

	got := UpToMonth(recs, datetime.Date(2026, time.March, 10))
	if len(got) != 2 {
		t.Fatalf("UpToMonth() kept %d records, expected 2", len(got))
	}
	if got[1].AmountOrZero() != 2 {
		t.Errorf("UpToMonth() kept %+v", got)
	}
}

func TestGetForecast(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")

	report, err := GetForecast(context.Background(), zap.NewNop(), conf, sampleRecords())
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}

	names := make([]string, len(report.Lines))
	for i, lf := range report.Lines {
		names[i] = lf.Line
	}
	expectedNames := []string{"AUTOS", "FIANZAS", "TOTAL"}
	if len(names) != len(expectedNames) {
		t.Fatalf("lines = %v, expected %v", names, expectedNames)
	}
	for i := range names {
		if names[i] != expectedNames[i] {
			t.Fatalf("lines = %v, expected %v", names, expectedNames)
		}
	}

	if report.ReferenceYear != 2026 || report.BudgetYear != 2027 || report.PhaseLine != "FIANZAS" {
		t.Errorf("report header = %d/%d/%s", report.ReferenceYear, report.BudgetYear, report.PhaseLine)
	}
	if len(report.Calendar) != 12 {
		t.Errorf("calendar has %d rows, expected 12", len(report.Calendar))
	}
	if len(report.Budget) != 2 {
		t.Errorf("budget has %d rows, expected 2", len(report.Budget))
	}
	if len(report.Warnings) == 0 {
		t.Errorf("expected a warning for the stacked FIANZAS factor")
	}

	autos, _ := report.Line("AUTOS")
	if autos.Partial == nil || !autos.Partial.Equal(datetime.Date(2026, time.March, 1)) {
		t.Errorf("AUTOS partial = %v, expected March 2026", autos.Partial)
	}
	if autos.Steps != 10 || len(autos.Adjusted) != 10 {
		t.Fatalf("AUTOS steps = %d with %d adjusted values, expected 10", autos.Steps, len(autos.Adjusted))
	}
	if first := autos.Result.Forecast[0].Date; !first.Equal(datetime.Date(2026, time.March, 1)) {
		t.Errorf("AUTOS first forecast month = %s, expected 2026-03", first.Format(datetime.DateTimeLayout))
	}
	for i, v := range autos.Adjusted {
		if math.Abs(v-100) > 1e-6 {
			t.Errorf("AUTOS adjusted[%d] = %v, expected 100 (no adjustment)", i, v)
		}
	}

	// 1000 x active phase 0.60 x flat 0.95, then post phase 1.15 x 0.95 in July.
	fianzas, _ := report.Line("FIANZAS")
	if math.Abs(fianzas.Adjusted[0]-570) > 1e-3 {
		t.Errorf("FIANZAS March = %v, expected 570", fianzas.Adjusted[0])
	}
	if math.Abs(fianzas.Adjusted[4]-1092.5) > 1e-3 {
		t.Errorf("FIANZAS July = %v, expected 1092.5", fianzas.Adjusted[4])
	}
	if math.Abs(fianzas.Result.Forecast[0].Monthly-1000) > 1e-6 {
		t.Errorf("FIANZAS unadjusted March = %v, expected 1000", fianzas.Result.Forecast[0].Monthly)
	}

	total, _ := report.Line("TOTAL")
	if math.Abs(total.Adjusted[0]-1100) > 1e-6 {
		t.Errorf("TOTAL March = %v, expected 1100", total.Adjusted[0])
	}

	// Year view: January and February actuals plus ten forecast months.
	s := autos.Summary
	if s.View != config.ViewYear {
		t.Errorf("summary view = %s, expected %s", s.View, config.ViewYear)
	}
	if s.Actual != 300 || s.Previous != 1200 || s.Budget != 360 {
		t.Errorf("AUTOS summary = %+v", s)
	}
	if math.Abs(s.Forecast-1200) > 1e-4 {
		t.Errorf("AUTOS estimated close = %v, expected 1200", s.Forecast)
	}
}

func TestGetForecastSharesCache(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")
	cache := finance.NewFitCache(16)

	for range 2 {
		if _, err := GetForecast(context.Background(), zap.NewNop(), conf, sampleRecords(), WithFitCache(cache), WithoutBudget()); err != nil {
			t.Fatalf("GetForecast() error = %v", err)
		}
	}
	hits, misses := cache.Stats()
	if misses != 3 || hits != 3 {
		t.Errorf("cache stats = %d hits, %d misses, expected 3 and 3", hits, misses)
	}
}

func TestGetForecastWithoutBudget(t *testing.T) {
	conf := testConfiguration(t, "2026-03-31")
	report, err := GetForecast(context.Background(), zap.NewNop(), conf, sampleRecords(), WithoutBudget())
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if report.Budget != nil {
		t.Errorf("Budget = %v, expected none", report.Budget)
	}
	autos, _ := report.Line("AUTOS")
	if autos.Partial != nil {
		t.Errorf("March should be closed at its last day")
	}
	if autos.Steps != 9 {
		t.Errorf("steps = %d, expected 9", autos.Steps)
	}
}

func TestGetForecastEmptyRecords(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")
	report, err := GetForecast(context.Background(), zap.NewNop(), conf, nil, WithoutBudget())
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if len(report.Lines) != 1 {
		t.Fatalf("lines = %d, expected only the consolidated line", len(report.Lines))
	}
	total := report.Lines[0]
	if len(total.Result.Forecast) != 0 || !math.IsNaN(total.Result.SMAPE) {
		t.Errorf("empty input should give an empty forecast and NaN SMAPE, got %+v", total.Result)
	}
}

func TestGetForecastCancelled(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetForecast(ctx, zap.NewNop(), conf, sampleRecords())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetForecast() error = %v, expected context.Canceled", err)
	}
}

func TestGetForecastInvalidPhase(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")
	conf.Phase.Onset = "tomorrow"
	if _, err := GetForecast(context.Background(), zap.NewNop(), conf, sampleRecords()); err == nil {
		t.Errorf("GetForecast() expected an error for an invalid phase onset")
	}
}

func TestGetBudget(t *testing.T) {
	conf := testConfiguration(t, "2026-03-15")
	rows, err := GetBudget(context.Background(), zap.NewNop(), conf, UpToMonth(sampleRecords(), conf.Forecast.CutoffDate))
	if err != nil {
		t.Fatalf("GetBudget() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Line != "AUTOS" || rows[1].Line != "FIANZAS" {
		t.Fatalf("GetBudget() = %+v", rows)
	}
	// Constant history: the moving average of 100 over twelve months, plus IPC.
	if math.Abs(rows[0].Base-1200) > 1e-6 || math.Abs(rows[0].Adjusted-1254) > 1e-6 {
		t.Errorf("AUTOS budget = %+v, expected base 1200 adjusted 1254", rows[0])
	}
}
