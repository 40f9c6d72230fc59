// Package forecast defines the data structures related to a forecast report
// and includes functions for computing it per business line.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/premium-forecast/internal/config"
	"github.com/iwvelando/premium-forecast/pkg/budget"
	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/finance"
	"github.com/iwvelando/premium-forecast/pkg/phase"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"github.com/iwvelando/premium-forecast/pkg/series"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LineForecast holds the forecast of one business line.
type LineForecast struct {
	Line   string          `json:"line"`
	Result *finance.Result `json:"result"`
	// Adjusted is the monthly forecast after phase and line factors.
	Adjusted []float64  `json:"adjusted"`
	Partial  *time.Time `json:"partial,omitempty"`
	Steps    int        `json:"steps"`
	Summary  Summary    `json:"summary"`
}

// AdjustedTotal returns the sum of the adjusted forecast.
func (lf LineForecast) AdjustedTotal() float64 {
	total := 0.0
	for _, v := range lf.Adjusted {
		total += v
	}
	return total
}

// Report holds all information related to a forecast run.
type Report struct {
	ReferenceYear      int               `json:"referenceYear"`
	Cutoff             time.Time         `json:"cutoff"`
	View               string            `json:"view"`
	ConservativeFactor float64           `json:"conservativeFactor"`
	PhaseLine          string            `json:"phaseLine"`
	Lines              []LineForecast    `json:"lines"`
	Calendar           []phase.ImpactRow `json:"calendar"`
	BudgetYear         int               `json:"budgetYear"`
	Budget             []budget.Row      `json:"budget"`
	Warnings           []string          `json:"warnings,omitempty"`
}

// Line returns the forecast of the named line.
func (r *Report) Line(name string) (LineForecast, bool) {
	for _, lf := range r.Lines {
		if lf.Line == name {
			return lf, true
		}
	}
	return LineForecast{}, false
}

// Option configures GetForecast.
type Option func(*options)

type options struct {
	cache      *finance.FitCache
	skipBudget bool
}

// WithFitCache shares cache across calls.
func WithFitCache(cache *finance.FitCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithoutBudget skips the budget table.
func WithoutBudget() Option {
	return func(o *options) {
		o.skipBudget = true
	}
}

// GetForecast processes the forecast of every business line plus the
// consolidated line. conf must have been normalized.
func GetForecast(ctx context.Context, logger *zap.Logger, conf config.Configuration, recs []records.Record, opts ...Option) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil && conf.Forecast.CacheEntries > 0 {
		o.cache = finance.NewFitCache(conf.Forecast.CacheEntries)
	}

	cal, err := conf.Calendar()
	if err != nil {
		return nil, fmt.Errorf("invalid phase calendar: %w", err)
	}

	cutoff := conf.Forecast.CutoffDate
	refYear := conf.Forecast.ReferenceYear
	recs = UpToMonth(recs, cutoff)

	engineOpts := []finance.Option{
		finance.WithConservativeFactor(conf.ConservativeFactor()),
		finance.WithEvalMonths(conf.Forecast.EvalMonths),
	}
	if o.cache != nil {
		engineOpts = append(engineOpts, finance.WithCache(o.cache))
	}
	engine := finance.NewForecastEngine(logger, engineOpts...)

	groups := records.GroupByLine(recs)
	names := records.Lines(recs)
	names = append(names, constants.ConsolidatedLine)

	lines := make([]LineForecast, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, conf.Forecast.Workers))
	for i, name := range names {
		lineRecs := groups[name]
		if name == constants.ConsolidatedLine {
			lineRecs = recs
		}
		g.Go(func() error {
			lf, err := forecastLine(gctx, logger, engine, cal, conf, name, lineRecs)
			if err != nil {
				return err
			}
			lines[i] = lf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		ReferenceYear:      refYear,
		Cutoff:             cutoff,
		View:               conf.Forecast.View,
		ConservativeFactor: conf.ConservativeFactor(),
		PhaseLine:          cal.Line(),
		Lines:              lines,
		Calendar:           cal.ImpactSummary(refYear),
		BudgetYear:         conf.Budget.TargetYear,
		Warnings:           conf.ValidateConfiguration(),
	}

	if !o.skipBudget {
		rows, err := GetBudget(ctx, logger, conf, recs)
		if err != nil {
			return nil, err
		}
		report.Budget = rows
	}

	if o.cache != nil {
		hits, misses := o.cache.Stats()
		logger.Debug("fit cache",
			zap.String("op", "forecast.GetForecast"),
			zap.Int64("hits", hits),
			zap.Int64("misses", misses),
		)
	}
	logger.Info("forecast complete",
		zap.String("op", "forecast.GetForecast"),
		zap.Int("lines", len(lines)),
		zap.Int("referenceYear", refYear),
		zap.String("cutoff", cutoff.Format(datetime.DayLayout)),
	)
	return report, nil
}

// GetBudget produces the budget table of conf.Budget.TargetYear. Records
// are grouped by business line.
func GetBudget(ctx context.Context, logger *zap.Logger, conf config.Configuration, recs []records.Record) ([]budget.Row, error) {
	gen := budget.NewGenerator(logger, conf.ConservativeFactor(), conf.Budget.IPCAdjustment,
		budget.WithWorkers(conf.Forecast.Workers))
	rows, err := gen.GenerateBudgetTable(ctx, records.GroupByLine(recs), conf.Budget.TargetYear)
	if err != nil {
		return nil, fmt.Errorf("failed to generate budget: %w", err)
	}
	return rows, nil
}

func forecastLine(ctx context.Context, logger *zap.Logger, engine *finance.ForecastEngine, cal *phase.Calendar,
	conf config.Configuration, line string, recs []records.Record) (LineForecast, error) {
	refYear := conf.Forecast.ReferenceYear
	cutoff := conf.Forecast.CutoffDate

	clean := series.Sanitize(series.Aggregate(recs), refYear)
	train, partial, _ := series.Split(clean, refYear, cutoff)
	steps := Horizon(conf.Forecast.Steps, train, partial, refYear, cutoff)

	result, err := engine.FitForecast(ctx, train, steps)
	if err != nil {
		return LineForecast{}, fmt.Errorf("line %s: %w", line, err)
	}

	adjusted, err := cal.AdjustLine(line, result.MonthlyForecast(), result.ForecastDates())
	if err != nil {
		return LineForecast{}, fmt.Errorf("line %s: %w", line, err)
	}

	logger.Debug("line forecast",
		zap.String("op", "forecast.forecastLine"),
		zap.String("line", line),
		zap.String("model", result.Model),
		zap.Float64("smape", result.SMAPE),
		zap.Int("steps", steps),
		zap.Bool("partial", partial != nil),
	)

	lf := LineForecast{
		Line:     line,
		Result:   result,
		Adjusted: adjusted,
		Partial:  partial,
		Steps:    steps,
	}
	lf.Summary = Summarize(conf.Forecast.View, refYear, cutoff, recs, result.ForecastDates(), adjusted)
	return lf, nil
}

// Horizon returns the number of months to forecast. A positive configured
// value wins; otherwise the forecast runs from the month after the last
// training month through December of refYear, and always at least one month.
func Horizon(configured int, train series.Series, partial *time.Time, refYear int, cutoff time.Time) int {
	if configured > 0 {
		return configured
	}
	var last time.Time
	if p, ok := train.Last(); ok {
		last = p.Date
	} else if partial != nil {
		last = datetime.AddMonths(*partial, -1)
	} else {
		last = datetime.AddMonths(datetime.MonthStart(cutoff), -1)
	}
	december := datetime.Date(refYear, time.December, 1)
	return max(1, datetime.MonthIndex(december)-datetime.MonthIndex(last))
}

// UpToMonth keeps the records dated no later than the month of cutoff.
func UpToMonth(recs []records.Record, cutoff time.Time) []records.Record {
	limit := datetime.MonthStart(cutoff)
	out := make([]records.Record, 0, len(recs))
	for _, r := range recs {
		if !r.HasDate() || r.Date.After(limit) {
			continue
		}
		out = append(out, r)
	}
	return out
}
