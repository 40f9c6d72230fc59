// Package finance fits premium forecasting models and evaluates them with a
// rolling-origin backtest.
package finance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/datetime"
	"github.com/iwvelando/premium-forecast/pkg/mathutil"
	"github.com/iwvelando/premium-forecast/pkg/series"
	"go.uber.org/zap"
)

// HistoryRow is one month of observed production.
type HistoryRow struct {
	Date       time.Time `json:"date"`
	Monthly    float64   `json:"monthly"`
	Cumulative float64   `json:"cumulative"`
}

// ForecastRow is one forecast month. Cumulative continues from the last
// historical cumulative value.
type ForecastRow struct {
	Date       time.Time `json:"date"`
	Monthly    float64   `json:"monthly"`
	Cumulative float64   `json:"cumulative"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
}

// Result is the output of FitForecast. SMAPE is NaN when the backtest could
// not evaluate a single origin or no model could be fitted.
type Result struct {
	History  []HistoryRow  `json:"history"`
	Forecast []ForecastRow `json:"forecast"`
	SMAPE    float64       `json:"smape"`
	Model    string        `json:"model"`
}

// MonthlyForecast returns the monthly point forecasts.
func (r *Result) MonthlyForecast() []float64 {
	out := make([]float64, len(r.Forecast))
	for i, row := range r.Forecast {
		out[i] = row.Monthly
	}
	return out
}

// ForecastDates returns the forecast months.
func (r *Result) ForecastDates() []time.Time {
	out := make([]time.Time, len(r.Forecast))
	for i, row := range r.Forecast {
		out[i] = row.Date
	}
	return out
}

func (r *Result) clone() *Result {
	return &Result{
		History:  append([]HistoryRow{}, r.History...),
		Forecast: append([]ForecastRow{}, r.Forecast...),
		SMAPE:    r.SMAPE,
		Model:    r.Model,
	}
}

// Option configures a ForecastEngine.
type Option func(*ForecastEngine)

// WithConservativeFactor multiplies every forecast and bound by factor.
func WithConservativeFactor(factor float64) Option {
	return func(fe *ForecastEngine) {
		fe.conservativeFactor = factor
	}
}

// WithEvalMonths sets how many trailing origins the backtest evaluates.
func WithEvalMonths(months int) Option {
	return func(fe *ForecastEngine) {
		fe.evalMonths = months
	}
}

// WithStrategies replaces the ranked model chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(fe *ForecastEngine) {
		fe.strategies = strategies
	}
}

// WithCache memoizes full fits in cache.
func WithCache(cache *FitCache) Option {
	return func(fe *ForecastEngine) {
		fe.cache = cache
	}
}

// ForecastEngine fits the ranked strategy chain on a monthly series. It holds
// configuration only and is safe for concurrent use.
type ForecastEngine struct {
	logger             *zap.Logger
	conservativeFactor float64
	evalMonths         int
	strategies         []Strategy
	cache              *FitCache
}

// NewForecastEngine creates a new forecast engine.
func NewForecastEngine(logger *zap.Logger, opts ...Option) *ForecastEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	fe := &ForecastEngine{
		logger:             logger,
		conservativeFactor: constants.DefaultConservativeFactor,
		evalMonths:         constants.DefaultEvalMonths,
		strategies:         DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(fe)
	}
	if fe.evalMonths < 0 {
		fe.evalMonths = 0
	}
	return fe
}

// ConservativeFactor returns the multiplier applied to forecasts.
func (fe *ForecastEngine) ConservativeFactor() float64 {
	return fe.conservativeFactor
}

// configKey identifies the engine configuration in cache keys.
func (fe *ForecastEngine) configKey() string {
	names := make([]string, len(fe.strategies))
	for i, s := range fe.strategies {
		names[i] = s.Name()
	}
	return fmt.Sprintf("cf=%g|eval=%d|chain=%s", fe.conservativeFactor, fe.evalMonths, strings.Join(names, ">"))
}

// SMAPE returns the symmetric mean absolute percentage error of pred against
// truth. It is NaN for empty or mismatched inputs.
func SMAPE(truth, pred []float64) float64 {
	if len(truth) == 0 || len(truth) != len(pred) {
		return math.NaN()
	}
	total := 0.0
	for i := range truth {
		total += 2 * math.Abs(pred[i]-truth[i]) / (math.Abs(truth[i]) + math.Abs(pred[i]) + constants.SMAPEEpsilon)
	}
	return total / float64(len(truth)) * constants.PercentageMultiplier
}

// Backtest evaluates one-step-ahead forecasts over the last evalMonths origins
// of values, refitting on the history strictly before each origin. At least
// twelve months must precede the first origin. It returns the mean SMAPE, or
// NaN when no origin could be evaluated. The error is non-nil only when ctx is
// done.
func (fe *ForecastEngine) Backtest(ctx context.Context, values []float64) (float64, error) {
	y := mathutil.Log1p(values)
	start := max(len(y)-fe.evalMonths, constants.MinBacktestHistory)

	var scores []float64
	for t := start; t < len(y); t++ {
		out, err := fe.runChain(ctx, y[:t], 1)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return math.NaN(), ctxErr
			}
			fe.logger.Debug("backtest origin skipped",
				zap.String("op", "finance.Backtest"),
				zap.Int("origin", t),
				zap.Error(err),
			)
			continue
		}
		scores = append(scores, SMAPE(
			[]float64{math.Expm1(y[t])},
			[]float64{math.Expm1(out.mean[0])},
		))
	}
	return mathutil.Mean(scores), nil
}

// FitForecast backtests the strategy chain on s, fits it on the whole series
// and forecasts steps months after the last observation. steps below one is
// treated as one. Model failures are not errors: the result then carries the
// history, an empty forecast and a NaN SMAPE. The error is non-nil only when
// ctx is done.
func (fe *ForecastEngine) FitForecast(ctx context.Context, s series.Series, steps int) (*Result, error) {
	if steps < 1 {
		steps = 1
	}
	s = series.Regularize(s)
	if len(s) == 0 {
		return &Result{History: []HistoryRow{}, Forecast: []ForecastRow{}, SMAPE: math.NaN()}, nil
	}

	if fe.cache == nil {
		return fe.fitForecast(ctx, s, steps)
	}
	key := fmt.Sprintf("%s|%s|steps=%d", s.Fingerprint(), fe.configKey(), steps)
	return fe.cache.Do(ctx, key, func() (*Result, error) {
		return fe.fitForecast(ctx, s, steps)
	})
}

func (fe *ForecastEngine) fitForecast(ctx context.Context, s series.Series, steps int) (*Result, error) {
	start := time.Now()
	values := s.Values()

	result := &Result{
		History:  make([]HistoryRow, len(s)),
		Forecast: []ForecastRow{},
		SMAPE:    math.NaN(),
	}
	cumulative := s.Cumulative()
	for i, p := range s {
		result.History[i] = HistoryRow{Date: p.Date, Monthly: p.Value, Cumulative: cumulative[i]}
	}

	smape, err := fe.Backtest(ctx, values)
	if err != nil {
		return nil, err
	}

	out, err := fe.runChain(ctx, mathutil.Log1p(values), steps)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		fe.logger.Debug("no forecast available",
			zap.String("op", "finance.FitForecast"),
			zap.Int("observations", len(values)),
			zap.Error(err),
		)
		return result, nil
	}

	mean := mathutil.ClipMin(mathutil.Scale(mathutil.Expm1(out.mean), fe.conservativeFactor), 0)
	lower := mathutil.ClipMin(mathutil.Scale(mathutil.Expm1(out.lower), fe.conservativeFactor), 0)
	upper := mathutil.ClipMin(mathutil.Scale(mathutil.Expm1(out.upper), fe.conservativeFactor), 0)

	last := s[len(s)-1]
	running := cumulative[len(cumulative)-1]
	result.Forecast = make([]ForecastRow, steps)
	for h := 0; h < steps; h++ {
		running += mean[h]
		result.Forecast[h] = ForecastRow{
			Date:       datetime.AddMonths(last.Date, h+1),
			Monthly:    mean[h],
			Cumulative: running,
			Lower:      lower[h],
			Upper:      upper[h],
		}
	}
	result.SMAPE = smape
	result.Model = out.model

	fe.logger.Debug("forecast fitted",
		zap.String("op", "finance.FitForecast"),
		zap.String("model", out.model),
		zap.Int("observations", len(values)),
		zap.Int("steps", steps),
		zap.Float64("smape", smape),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}
