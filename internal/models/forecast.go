// Package models defines data structures and domain types.
package models

// ForecastMethod names a forecasting model.
type ForecastMethod string

const (
	MethodLinearRegression     ForecastMethod = "linear-regression"
	MethodExponentialSmoothing ForecastMethod = "exponential-smoothing"
	MethodMovingAverage        ForecastMethod = "moving-average"
)

// ForecastPoint is one future period's estimate with its interval.
type ForecastPoint struct {
	PeriodOffset    int     `json:"periodOffset"`
	PointEstimate   float64 `json:"pointEstimate"`
	LowerBound      float64 `json:"lowerBound"`
	UpperBound      float64 `json:"upperBound"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
}

// Width returns the interval width.
func (p ForecastPoint) Width() float64 {
	return p.UpperBound - p.LowerBound
}
