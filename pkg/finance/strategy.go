package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/sarima"
)

// ErrAllStrategiesFailed is returned when no strategy in the chain produced a
// usable forecast.
var ErrAllStrategiesFailed = errors.New("finance: all forecast strategies failed")

// Fitted is a model that has been estimated and can forecast.
type Fitted interface {
	Forecast(steps int, confidence float64) (mean, lower, upper []float64, err error)
}

// Strategy fits one model family. Strategies are tried in rank order and the
// first one that fits and forecasts successfully is adopted.
type Strategy interface {
	Name() string
	Fit(ctx context.Context, y []float64) (Fitted, error)
}

// ModelStrategy fits a seasonal ARIMA model of a fixed order.
type ModelStrategy struct {
	Order sarima.Order
}

// Name returns the model order in ARIMA notation.
func (s ModelStrategy) Name() string {
	return s.Order.String()
}

// Fit estimates the model on y.
func (s ModelStrategy) Fit(ctx context.Context, y []float64) (Fitted, error) {
	m := sarima.New(s.Order)
	if err := m.Fit(ctx, y); err != nil {
		return nil, err
	}
	return m, nil
}

// SeasonalStrategy is SARIMA(1,1,1)(1,1,1,12).
func SeasonalStrategy() Strategy {
	return ModelStrategy{Order: sarima.Order{P: 1, D: 1, Q: 1, SP: 1, SD: 1, SQ: 1, M: constants.SeasonalPeriod}}
}

// NonSeasonalStrategy is ARIMA(1,1,1).
func NonSeasonalStrategy() Strategy {
	return ModelStrategy{Order: sarima.Order{P: 1, D: 1, Q: 1}}
}

// DefaultStrategies returns the seasonal model followed by its non-seasonal
// fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{SeasonalStrategy(), NonSeasonalStrategy()}
}

// forecastOutcome is the forecast of the first strategy that succeeded.
type forecastOutcome struct {
	model              string
	mean, lower, upper []float64
}

// runChain fits each strategy on y in order and forecasts steps ahead with the
// first that succeeds. Context errors end the chain immediately.
func (fe *ForecastEngine) runChain(ctx context.Context, y []float64, steps int) (*forecastOutcome, error) {
	var errs []error
	for _, strategy := range fe.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitted, err := strategy.Fit(ctx, y)
		if err == nil {
			var out forecastOutcome
			out.mean, out.lower, out.upper, err = fitted.Forecast(steps, constants.ConfidenceLevel)
			if err == nil {
				out.model = strategy.Name()
				return &out, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
	}
	if len(errs) == 0 {
		return nil, ErrAllStrategiesFailed
	}
	return nil, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(errs...))
}
