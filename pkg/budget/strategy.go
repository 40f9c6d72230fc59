package budget

import (
	"context"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
	"github.com/iwvelando/premium-forecast/pkg/gbm"
)

// Strategy estimates the raw annual total of a target year from monthly
// observations. The conservative factor is applied by the caller.
type Strategy interface {
	Name() string
	Forecast(ctx context.Context, obs []MonthlyObservation, targetYear int) (float64, error)
}

// DefaultStrategies returns the boosted model followed by the moving-average
// fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{
		GradientBoostedStrategy{Params: gbm.DefaultParams()},
		MovingAverageStrategy{Window: constants.BudgetAverageWindow},
	}
}

// GradientBoostedStrategy regresses the monthly amount on (year, month) and
// sums the twelve predictions of the target year, clipping negatives to zero.
type GradientBoostedStrategy struct {
	Params gbm.Params
}

// Name returns the path label.
func (GradientBoostedStrategy) Name() string {
	return PathGradientBoosted
}

// Forecast trains the model and predicts every month of targetYear.
func (s GradientBoostedStrategy) Forecast(ctx context.Context, obs []MonthlyObservation, targetYear int) (float64, error) {
	if len(obs) == 0 {
		return 0, errNoObservations
	}
	X := make([][]float64, len(obs))
	y := make([]float64, len(obs))
	for i, o := range obs {
		X[i] = []float64{float64(o.Year), float64(o.Month)}
		y[i] = o.Amount
	}

	model, err := gbm.Fit(ctx, X, y, s.Params)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for month := time.January; month <= time.December; month++ {
		pred, err := model.Predict([]float64{float64(targetYear), float64(month)})
		if err != nil {
			return 0, err
		}
		if pred > 0 {
			total += pred
		}
	}
	return total, nil
}

// MovingAverageStrategy annualizes the mean of the last Window observed
// months.
type MovingAverageStrategy struct {
	Window int
}

// Name returns the path label.
func (MovingAverageStrategy) Name() string {
	return PathMovingAverage
}

// Forecast returns mean(last Window months) x 12.
func (s MovingAverageStrategy) Forecast(_ context.Context, obs []MonthlyObservation, _ int) (float64, error) {
	if len(obs) == 0 {
		return 0, errNoObservations
	}
	window := s.Window
	if window < 1 || window > len(obs) {
		window = len(obs)
	}
	sum := 0.0
	for _, o := range obs[len(obs)-window:] {
		sum += o.Amount
	}
	return sum / float64(window) * constants.MonthsPerYear, nil
}
