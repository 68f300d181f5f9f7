package forecast

import (
	"math"

	"github.com/j-veylop/spendlens/internal/models"
)

// LinearRegression fits ordinary least squares over (index, value) and
// extends the line. The interval is ±1.96 standard errors of the residuals.
type LinearRegression struct{}

// Method returns the registry key.
func (LinearRegression) Method() models.ForecastMethod { return models.MethodLinearRegression }

// Forecast projects horizon periods past the end of series.
func (LinearRegression) Forecast(series []float64, horizon int) []models.ForecastPoint {
	n := float64(len(series))
	slope, intercept := leastSquares(series)

	var ssr float64
	for i, y := range series {
		r := y - (slope*float64(i) + intercept)
		ssr += r * r
	}
	margin := z95 * math.Sqrt(ssr/(n-2))

	points := make([]models.ForecastPoint, horizon)
	for k := 1; k <= horizon; k++ {
		est := slope*(n-1+float64(k)) + intercept
		points[k-1] = models.ForecastPoint{
			PeriodOffset:    k,
			PointEstimate:   est,
			LowerBound:      est - margin,
			UpperBound:      est + margin,
			ConfidenceLevel: 0.95,
		}
	}
	return points
}

func leastSquares(series []float64) (slope, intercept float64) {
	n := float64(len(series))
	meanX := (n - 1) / 2
	meanY := mean(series)

	var num, den float64
	for i, y := range series {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den != 0 {
		slope = num / den
	}
	return slope, meanY - slope*meanX
}

// ExponentialSmoothing continues the final smoothed level flat. The margin
// widens by 10% of the level per period while confidence drops by 0.10
// per period down to 0.5.
type ExponentialSmoothing struct {
	Alpha float64
}

// Method returns the registry key.
func (ExponentialSmoothing) Method() models.ForecastMethod {
	return models.MethodExponentialSmoothing
}

// Forecast projects horizon periods past the end of series.
func (m ExponentialSmoothing) Forecast(series []float64, horizon int) []models.ForecastPoint {
	level := Smooth(series, m.Alpha)

	points := make([]models.ForecastPoint, horizon)
	for k := 1; k <= horizon; k++ {
		margin := 0.10 * float64(k) * math.Abs(level)
		points[k-1] = models.ForecastPoint{
			PeriodOffset:    k,
			PointEstimate:   level,
			LowerBound:      level - margin,
			UpperBound:      level + margin,
			ConfidenceLevel: math.Max(0.5, 0.95-0.10*float64(k-1)),
		}
	}
	return points
}

// Smooth returns the final single-exponential-smoothing level, seeded with
// the first observation.
func Smooth(series []float64, alpha float64) float64 {
	if len(series) == 0 {
		return 0
	}
	level := series[0]
	for _, x := range series[1:] {
		level = alpha*x + (1-alpha)*level
	}
	return level
}

// MovingAverage repeats the trailing window mean for every period with a
// ±1.96 population standard deviation interval.
type MovingAverage struct {
	Window int
}

// Method returns the registry key.
func (MovingAverage) Method() models.ForecastMethod { return models.MethodMovingAverage }

// Forecast projects horizon periods past the end of series.
func (m MovingAverage) Forecast(series []float64, horizon int) []models.ForecastPoint {
	size := min(max(m.Window, 1), len(series))
	window := series[len(series)-size:]

	avg := mean(window)
	margin := z95 * stdDev(window, avg)

	points := make([]models.ForecastPoint, horizon)
	for k := 1; k <= horizon; k++ {
		points[k-1] = models.ForecastPoint{
			PeriodOffset:    k,
			PointEstimate:   avg,
			LowerBound:      avg - margin,
			UpperBound:      avg + margin,
			ConfidenceLevel: 0.95,
		}
	}
	return points
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation around avg.
func stdDev(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += (v - avg) * (v - avg)
	}
	return math.Sqrt(sum / float64(len(values)))
}
