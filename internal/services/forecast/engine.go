// Package forecast projects monthly spend with interchangeable models.
package forecast

import (
	"slices"

	"github.com/samber/lo"

	"github.com/j-veylop/spendlens/internal/models"
)

// MinHistory is the shortest series any model accepts.
const MinHistory = 3

// DefaultAlpha is the exponential smoothing factor.
const DefaultAlpha = 0.3

// z95 is the two-sided 95% normal quantile.
const z95 = 1.96

// Model is one forecasting strategy. Implementations must be pure: the
// output depends only on the series and horizon.
type Model interface {
	Method() models.ForecastMethod
	Forecast(series []float64, horizon int) []models.ForecastPoint
}

// Engine selects a model by method name.
type Engine struct {
	models map[models.ForecastMethod]Model
}

// NewEngine returns an engine with the three built-in models. A
// non-positive alpha falls back to DefaultAlpha.
func NewEngine(alpha float64) *Engine {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return NewEngineWith(
		LinearRegression{},
		ExponentialSmoothing{Alpha: alpha},
		MovingAverage{Window: 3},
	)
}

// NewEngineWith builds an engine from an explicit model set.
func NewEngineWith(ms ...Model) *Engine {
	e := &Engine{models: make(map[models.ForecastMethod]Model, len(ms))}
	for _, m := range ms {
		e.models[m.Method()] = m
	}
	return e
}

// Methods lists the registered method names in sorted order.
func (e *Engine) Methods() []models.ForecastMethod {
	methods := lo.Keys(e.models)
	slices.Sort(methods)
	return methods
}

// Forecast runs the named model. Unknown names are an error, never a
// silent default.
func (e *Engine) Forecast(series []float64, method models.ForecastMethod, horizon int) ([]models.ForecastPoint, error) {
	m, ok := e.models[method]
	if !ok {
		return nil, &UnknownMethodError{Method: string(method)}
	}
	if horizon < 1 {
		return nil, ErrInvalidHorizon
	}
	if len(series) < MinHistory {
		return nil, &InsufficientHistoryError{Method: method, Have: len(series), Need: MinHistory}
	}
	return m.Forecast(slices.Clone(series), horizon), nil
}

// ForecastSeries forecasts the monthly roll-up of a time series.
func (e *Engine) ForecastSeries(ts models.TimeSeries, method models.ForecastMethod, horizon int) ([]models.ForecastPoint, error) {
	return e.Forecast(ts.MonthlyValues(), method, horizon)
}
