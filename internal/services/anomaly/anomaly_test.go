package anomaly

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

func TestDetect_Spike(t *testing.T) {
	values := []float64{100, 110, 90, 105, 400}
	labels := []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05"}

	got := Detect(values, labels, Options{Sensitivity: SensitivityMedium})

	if len(got) != 1 {
		t.Fatalf("got %d anomalies, want 1: %+v", len(got), got)
	}
	a := got[0]
	if a.Period != "2024-05" || a.Actual != 400 {
		t.Errorf("unexpected anomaly: %+v", a)
	}
	if a.Expected != 101.25 {
		t.Errorf("Expected = %v, want 101.25", a.Expected)
	}
	if a.Severity != "critical" || a.PercentChange <= 0 {
		t.Errorf("severity/percent = %s/%v", a.Severity, a.PercentChange)
	}
}

func TestDetect_Sensitivity(t *testing.T) {
	// Baseline mean 100, population sd 10; last point sits 2.5 sd above.
	values := []float64{90, 110, 90, 110, 125}

	tests := []struct {
		sensitivity Sensitivity
		want        int
	}{
		{SensitivityLow, 0},
		{SensitivityMedium, 1},
		{SensitivityHigh, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.sensitivity), func(t *testing.T) {
			got := Detect(values, nil, Options{Sensitivity: tt.sensitivity, MinBaseline: 4})
			if len(got) != tt.want {
				t.Errorf("got %d anomalies, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetect_NeedsBaseline(t *testing.T) {
	if got := Detect([]float64{1, 1000}, nil, Options{}); len(got) != 0 {
		t.Errorf("short series should not be flagged, got %+v", got)
	}
	if got := Detect([]float64{5, 5, 5, 500}, nil, Options{}); len(got) != 0 {
		t.Errorf("flat baseline should not be flagged, got %+v", got)
	}
	if got := Detect(nil, nil, Options{}); got == nil {
		t.Error("Detect(nil) should return an empty slice")
	}
}

func TestParseSensitivity(t *testing.T) {
	tests := map[string]Sensitivity{
		"low":   SensitivityLow,
		" HIGH": SensitivityHigh,
		"":      SensitivityMedium,
		"wild":  SensitivityMedium,
	}
	for in, want := range tests {
		if got := ParseSensitivity(in); got != want {
			t.Errorf("ParseSensitivity(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDetectSeries(t *testing.T) {
	var ts models.TimeSeries
	for i, v := range []int64{100, 110, 90, 105, 400} {
		ts.Points = append(ts.Points, models.SeriesPoint{
			Start:  time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC),
			Amount: decimal.NewFromInt(v),
		})
	}

	got := DetectSeries(ts, Options{Sensitivity: SensitivityHigh})
	if len(got) != 1 || got[0].Period != "2024-05" {
		t.Errorf("DetectSeries() = %+v", got)
	}
}
