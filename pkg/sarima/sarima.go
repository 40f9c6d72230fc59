// Package sarima fits multiplicative seasonal ARIMA models by conditional sum
// of squares and produces point and interval forecasts.
//
// The model is
//
//	phi(B) Phi(B^s) (1-B)^d (1-B^s)^D y_t = theta(B) Theta(B^s) e_t
//
// without an intercept. Every coefficient is kept inside (-1, 1) by a tanh
// reparameterization and the squared residuals are minimized with the
// Nelder-Mead simplex method.
package sarima

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidOrder is returned for negative orders or a seasonal part
	// without a period.
	ErrInvalidOrder = errors.New("sarima: invalid model order")

	// ErrInsufficientData is returned when the series is too short to
	// estimate the requested order.
	ErrInsufficientData = errors.New("sarima: insufficient data for model order")

	// ErrNonFinite is returned when estimation produces NaN or infinite
	// values.
	ErrNonFinite = errors.New("sarima: non-finite estimate")

	// ErrNotFitted is returned when forecasting from a model that has not
	// been fitted.
	ErrNotFitted = errors.New("sarima: model not fitted")
)

// penalty replaces non-finite objective values so the simplex keeps moving
// away from them.
const penalty = 1e100

// Order is the (p, d, q)(P, D, Q, m) order of a seasonal ARIMA model.
type Order struct {
	P  int
	D  int
	Q  int
	SP int
	SD int
	SQ int
	M  int
}

// String renders the order in the usual notation.
func (o Order) String() string {
	if o.SP == 0 && o.SD == 0 && o.SQ == 0 {
		return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
	}
	return fmt.Sprintf("SARIMA(%d,%d,%d)(%d,%d,%d,%d)", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.M)
}

func (o Order) validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 || o.SP < 0 || o.SD < 0 || o.SQ < 0 {
		return ErrInvalidOrder
	}
	if (o.SP > 0 || o.SD > 0 || o.SQ > 0) && o.M < 2 {
		return ErrInvalidOrder
	}
	return nil
}

func (o Order) period() int {
	if o.M < 1 {
		return 1
	}
	return o.M
}

func (o Order) numParams() int {
	return o.P + o.SP + o.Q + o.SQ
}

// Model is a seasonal ARIMA model. The zero value is not usable; create models
// with New.
type Model struct {
	Order Order

	AR  []float64
	SAR []float64
	MA  []float64
	SMA []float64

	// Sigma2 is the innovation variance estimated from the residuals.
	Sigma2 float64

	y      []float64
	diff   []float64
	w      []float64 // differenced series
	resid  []float64 // residuals aligned with w
	arSide []float64
	arFull []float64 // AR side including differencing, in y levels
	maFull []float64
	fitted bool
}

// New creates an unfitted model of the given order.
func New(order Order) *Model {
	return &Model{Order: order}
}

// MinObservations returns the shortest series Fit accepts for order: the
// differenced series must leave at least one residual after the non-seasonal
// AR lags. Seasonal lags reaching before the sample read a zero presample.
func MinObservations(order Order) int {
	s := order.period()
	return order.D + order.SD*s + order.P + 1
}

// Fit estimates the coefficients from y. Fit stops early with ctx.Err() when
// ctx is cancelled.
func (m *Model) Fit(ctx context.Context, y []float64) error {
	m.fitted = false
	if err := m.Order.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	if len(y) < MinObservations(m.Order) {
		return ErrInsufficientData
	}

	o := m.Order
	s := o.period()
	diff := diffPoly(o.D, o.SD, s)
	w := applyPoly(diff, y)
	cond := o.P

	n := o.numParams()
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Atanh(0.1)
	}

	if n > 0 {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				ar, sar, ma, sma := m.unpack(x)
				_, sse := css(w, polyMul(arPoly(ar, 1), arPoly(sar, s)), polyMul(maPoly(ma, 1), maPoly(sma, s)), cond)
				if math.IsNaN(sse) || math.IsInf(sse, 0) {
					return penalty
				}
				return sse
			},
		}
		settings := &optimize.Settings{
			MajorIterations: 2000,
			FuncEvaluations: 6000,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 100,
			},
			Recorder: contextRecorder{ctx: ctx},
		}
		result, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if result == nil {
			if err == nil {
				err = ErrNonFinite
			}
			return fmt.Errorf("sarima: minimize: %w", err)
		}
		// A stalled simplex still holds the best point it found.
		if err != nil && (math.IsNaN(result.F) || result.F >= penalty) {
			return fmt.Errorf("sarima: minimize: %w", err)
		}
		x = result.X
	}

	m.AR, m.SAR, m.MA, m.SMA = m.unpack(x)
	arSide := polyMul(arPoly(m.AR, 1), arPoly(m.SAR, s))
	m.maFull = polyMul(maPoly(m.MA, 1), maPoly(m.SMA, s))
	resid, sse := css(w, arSide, m.maFull, cond)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return ErrNonFinite
	}
	m.Sigma2 = sse / float64(len(w)-cond)
	m.arSide = arSide
	m.arFull = polyMul(arSide, diff)
	m.diff = diff
	m.w = w
	m.resid = resid
	m.y = append([]float64(nil), y...)
	m.fitted = true
	return nil
}

func (m *Model) unpack(x []float64) (ar, sar, ma, sma []float64) {
	o := m.Order
	coeffs := make([]float64, len(x))
	for i, v := range x {
		coeffs[i] = math.Tanh(v)
	}
	ar = coeffs[:o.P]
	sar = coeffs[o.P : o.P+o.SP]
	ma = coeffs[o.P+o.SP : o.P+o.SP+o.Q]
	sma = coeffs[o.P+o.SP+o.Q:]
	return ar, sar, ma, sma
}

// css returns the conditional residuals of the differenced series w and their
// sum of squares. Residuals before cond and values of w before the sample are
// taken as zero.
func css(w, ar, ma []float64, cond int) ([]float64, float64) {
	e := make([]float64, len(w))
	sse := 0.0
	for t := cond; t < len(w); t++ {
		v := 0.0
		for k, c := range ar {
			if c != 0 && k <= t {
				v += c * w[t-k]
			}
		}
		for k := 1; k < len(ma) && k <= t; k++ {
			if ma[k] != 0 {
				v -= ma[k] * e[t-k]
			}
		}
		e[t] = v
		sse += v * v
	}
	return e, sse
}

// Forecast returns steps point forecasts with lower and upper bounds of the
// two-sided interval at the given confidence level.
func (m *Model) Forecast(steps int, confidence float64) (mean, lower, upper []float64, err error) {
	if !m.fitted {
		return nil, nil, nil, ErrNotFitted
	}
	if steps < 1 {
		return nil, nil, nil, fmt.Errorf("sarima: steps must be positive, got %d", steps)
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, nil, nil, fmt.Errorf("sarima: confidence must be in (0, 1), got %v", confidence)
	}

	// The ARMA part runs on the differenced scale, then the differencing is
	// undone against the observed levels.
	nw := len(m.w)
	w := make([]float64, nw+steps)
	copy(w, m.w)
	e := make([]float64, nw+steps)
	copy(e, m.resid)
	for t := nw; t < nw+steps; t++ {
		v := 0.0
		for k := 1; k < len(m.arSide) && k <= t; k++ {
			v -= m.arSide[k] * w[t-k]
		}
		for k := 1; k < len(m.maFull) && k <= t; k++ {
			v += m.maFull[k] * e[t-k]
		}
		w[t] = v
	}

	n := len(m.y)
	y := make([]float64, n+steps)
	copy(y, m.y)
	for h := 0; h < steps; h++ {
		t := n + h
		v := w[nw+h]
		for k := 1; k < len(m.diff); k++ {
			v -= m.diff[k] * y[t-k]
		}
		y[t] = v
	}

	psi := m.psiWeights(steps)
	z := distuv.UnitNormal.Quantile(1 - (1-confidence)/2)

	mean = y[n:]
	lower = make([]float64, steps)
	upper = make([]float64, steps)
	variance := 0.0
	for h := 0; h < steps; h++ {
		variance += psi[h] * psi[h]
		half := z * math.Sqrt(m.Sigma2*variance)
		lower[h] = mean[h] - half
		upper[h] = mean[h] + half
	}

	for _, vals := range [][]float64{mean, lower, upper} {
		for _, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, nil, ErrNonFinite
			}
		}
	}
	return mean, lower, upper, nil
}

// psiWeights returns the first n coefficients of the MA(infinity)
// representation of the integrated model.
func (m *Model) psiWeights(n int) []float64 {
	psi := make([]float64, n)
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j < len(m.maFull) {
			v = m.maFull[j]
		}
		for k := 1; k <= j && k < len(m.arFull); k++ {
			v -= m.arFull[k] * psi[j-k]
		}
		psi[j] = v
	}
	return psi
}

// contextRecorder aborts the optimization once the context is done.
type contextRecorder struct {
	ctx context.Context
}

func (r contextRecorder) Init() error {
	return r.ctx.Err()
}

func (r contextRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}
