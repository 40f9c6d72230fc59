// Package budget produces annual premium budgets per business line.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/mathutil"
	"github.com/iwvelando/premium-forecast/pkg/records"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Model path labels.
const (
	PathObservedTotal   = "observed total"
	PathGradientBoosted = "gradient-boosted monthly"
	PathMovingAverage   = "6-month average x12"
	PathUnavailable     = "no estimate"
)

// MonthlyObservation is the production of one month with its calendar
// features.
type MonthlyObservation struct {
	Date   time.Time
	Year   int
	Month  int
	Amount float64
}

// Estimate is an annual forecast and the path that produced it.
type Estimate struct {
	Value float64
	Model string
}

// Row is the budget of one business line.
type Row struct {
	Line       string  `json:"line"`
	Base       float64 `json:"base"`
	Adjusted   float64 `json:"adjusted"`
	IPCPercent float64 `json:"ipcPercent"`
	Model      string  `json:"model"`
}

// Option configures a Generator.
type Option func(*Generator)

// WithStrategies replaces the ranked strategy chain used once enough
// observations exist.
func WithStrategies(strategies ...Strategy) Option {
	return func(g *Generator) {
		g.strategies = strategies
	}
}

// WithWorkers bounds how many lines are forecast concurrently.
func WithWorkers(workers int) Option {
	return func(g *Generator) {
		g.workers = workers
	}
}

// Generator forecasts annual budgets. It holds configuration only and is safe
// for concurrent use.
type Generator struct {
	logger             *zap.Logger
	conservativeFactor float64
	ipcAdjustment      float64
	strategies         []Strategy
	workers            int
}

// NewGenerator creates a budget generator. ipcAdjustment is the inflation
// adjustment in percent.
func NewGenerator(logger *zap.Logger, conservativeFactor, ipcAdjustment float64, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		logger:             logger,
		conservativeFactor: conservativeFactor,
		ipcAdjustment:      ipcAdjustment,
		strategies:         DefaultStrategies(),
		workers:            constants.DefaultWorkers,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers < 1 {
		g.workers = 1
	}
	return g
}

// Prepare sums the records of one line by month. Records without a usable
// date are discarded and missing amounts count as zero.
func Prepare(recs []records.Record) []MonthlyObservation {
	sums := make(map[time.Time]float64)
	for _, r := range recs {
		if !r.HasDate() {
			continue
		}
		sums[datetime.MonthStart(r.Date)] += r.AmountOrZero()
	}

	obs := make([]MonthlyObservation, 0, len(sums))
	for date, amount := range sums {
		obs = append(obs, MonthlyObservation{
			Date:   date,
			Year:   date.Year(),
			Month:  int(date.Month()),
			Amount: amount,
		})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return obs
}

// ForecastSegment forecasts the total production of targetYear for one line.
// With fewer than three observed months the observed total is used as is.
// Model failures fall through the strategy chain; the error is non-nil only
// when ctx is done.
func (g *Generator) ForecastSegment(ctx context.Context, recs []records.Record, targetYear int) (Estimate, error) {
	if err := ctx.Err(); err != nil {
		return Estimate{}, err
	}

	obs := Prepare(recs)
	if len(obs) < constants.MinBudgetObservations {
		total := 0.0
		for _, o := range obs {
			total += o.Amount
		}
		return Estimate{Value: total * g.conservativeFactor, Model: PathObservedTotal}, nil
	}

	for _, strategy := range g.strategies {
		total, err := strategy.Forecast(ctx, obs, targetYear)
		if err == nil {
			return Estimate{Value: total * g.conservativeFactor, Model: strategy.Name()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Estimate{}, ctxErr
		}
		g.logger.Debug("budget strategy failed",
			zap.String("op", "budget.ForecastSegment"),
			zap.String("strategy", strategy.Name()),
			zap.Int("observations", len(obs)),
			zap.Error(err),
		)
	}
	return Estimate{Model: PathUnavailable}, nil
}

// GenerateBudgetTable forecasts every line of recordsByLine and applies the
// inflation adjustment. Rows are sorted by line.
func (g *Generator) GenerateBudgetTable(ctx context.Context, recordsByLine map[string][]records.Record, targetYear int) ([]Row, error) {
	lines := make([]string, 0, len(recordsByLine))
	for line := range recordsByLine {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)

	rows := make([]Row, len(lines))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, line := range lines {
		eg.Go(func() error {
			est, err := g.ForecastSegment(egCtx, recordsByLine[line], targetYear)
			if err != nil {
				return fmt.Errorf("line %s: %w", line, err)
			}
			rows[i] = Row{
				Line:       line,
				Base:       est.Value,
				Adjusted:   est.Value * mathutil.PercentToFactor(g.ipcAdjustment),
				IPCPercent: g.ipcAdjustment,
				Model:      est.Model,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("budget table generated",
		zap.String("op", "budget.GenerateBudgetTable"),
		zap.Int("target_year", targetYear),
		zap.Int("lines", len(rows)),
	)
	return rows, nil
}

// Totals sums the base and adjusted columns.
func Totals(rows []Row) (base, adjusted float64) {
	for _, r := range rows {
		base += r.Base
		adjusted += r.Adjusted
	}
	return base, adjusted
}

// errNoObservations is returned by strategies given nothing to work with.
var errNoObservations = errors.New("budget: no observations")
