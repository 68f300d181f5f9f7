// Package anomaly flags series points that stray from their trailing baseline.
package anomaly

import (
	"math"
	"strings"

	"github.com/j-veylop/spendlens/internal/models"
)

// Sensitivity selects the z-score threshold.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

var thresholds = map[Sensitivity]float64{
	SensitivityLow:    3.0,
	SensitivityMedium: 2.0,
	SensitivityHigh:   1.5,
}

// DefaultMinBaseline is the fewest prior points a baseline may use.
const DefaultMinBaseline = 3

// Options configures detection.
type Options struct {
	Sensitivity Sensitivity
	MinBaseline int
}

// ParseSensitivity maps a config string to a Sensitivity, defaulting to medium.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(strings.ToLower(strings.TrimSpace(s))) {
	case SensitivityLow:
		return SensitivityLow
	case SensitivityHigh:
		return SensitivityHigh
	}
	return SensitivityMedium
}

// Detect compares each value with the mean and population standard
// deviation of every value before it. Points without enough history, or
// with a flat baseline, are never flagged.
func Detect(values []float64, labels []string, opts Options) []models.Anomaly {
	threshold, ok := thresholds[opts.Sensitivity]
	if !ok {
		threshold = thresholds[SensitivityMedium]
	}
	minBaseline := opts.MinBaseline
	if minBaseline <= 0 {
		minBaseline = DefaultMinBaseline
	}

	out := make([]models.Anomaly, 0)
	for i := minBaseline; i < len(values); i++ {
		baseline := values[:i]
		avg, sd := meanStdDev(baseline)
		if sd == 0 {
			continue
		}

		z := (values[i] - avg) / sd
		if math.Abs(z) < threshold {
			continue
		}

		var pct float64
		if avg != 0 {
			pct = (values[i] - avg) / avg * 100
		}
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, models.Anomaly{
			Period:        label,
			Actual:        values[i],
			Expected:      avg,
			Deviation:     z,
			PercentChange: pct,
			Severity:      severity(z),
		})
	}
	return out
}

// DetectSeries runs Detect over a series' monthly roll-up.
func DetectSeries(ts models.TimeSeries, opts Options) []models.Anomaly {
	values := ts.MonthlyValues()
	labels := make([]string, 0, len(values))
	last := ""
	for _, p := range ts.Points {
		month := p.Start.Format(models.MonthLayout)
		if month != last {
			labels = append(labels, month)
			last = month
		}
	}
	return Detect(values, labels, opts)
}

func severity(z float64) string {
	switch abs := math.Abs(z); {
	case abs >= 4.0:
		return "critical"
	case abs >= 3.0:
		return "high"
	case abs >= 2.0:
		return "medium"
	}
	return "low"
}

func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return avg, math.Sqrt(sq / float64(len(values)))
}
