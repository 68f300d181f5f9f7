// Package components provides reusable rendering pieces for the report.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/spendlens/internal/ui/styles"
)

// Chart colors for history and forecast series.
var (
	ChartHistoryColor  = lipgloss.Color("#7D56F4")
	ChartForecastColor = lipgloss.Color("#4285f4")
	ChartBoundColor    = lipgloss.Color("240")
)

func clampSize(width, height int) (int, int) {
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}
	return width, height
}

// RenderLineChart creates a single-series ASCII line chart.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}
	width, height = clampSize(width, height)

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// RenderForecastChart plots history followed by the projected estimates and
// their interval bounds. The projection series start at the last observed
// point so the lines join.
func RenderForecastChart(history, estimate, lower, upper []float64, width, height int, caption string) string {
	if len(history) == 0 {
		return styles.HelpStyle.Render("No data available")
	}
	if len(estimate) == 0 {
		return RenderLineChart(history, width, height, caption)
	}
	width, height = clampSize(width, height)

	n := len(history) + len(estimate)
	last := history[len(history)-1]
	project := func(values []float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = last
		}
		copy(out[len(history):], values)
		return out
	}

	hist := make([]float64, n)
	copy(hist, history)
	for i := len(history); i < n; i++ {
		hist[i] = last
	}

	return asciigraph.PlotMany([][]float64{hist, project(estimate), project(lower), project(upper)},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(
			asciigraph.Default,
			asciigraph.Blue,
			asciigraph.DarkGray,
			asciigraph.DarkGray,
		),
	)
}

// RenderBarChart creates a simple horizontal bar chart.
func RenderBarChart(values []float64, labels []string, width int) string {
	if len(values) == 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	maxLabelLen := 0
	for _, l := range labels {
		if w := lipgloss.Width(l); w > maxLabelLen {
			maxLabelLen = w
		}
	}

	barWidth := width - maxLabelLen - 16 // room for label and value
	if barWidth < 10 {
		barWidth = 10
	}

	lines := make([]string, 0, len(values))
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}

		barLen := int((v / maxVal) * float64(barWidth))
		if barLen < 0 {
			barLen = 0
		}

		bar := lipgloss.NewStyle().Foreground(ChartHistoryColor).Render(strings.Repeat("█", barLen))
		lines = append(lines, fmt.Sprintf("%*s │%s %.2f", maxLabelLen, label, bar, v))
	}

	return strings.Join(lines, "\n")
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	// Sample values to fit width
	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		normalized := int((val / maxVal) * float64(len(sparkChars)-1))
		normalized = max(0, min(normalized, len(sparkChars)-1))
		result.WriteRune(sparkChars[normalized])
	}

	return result.String()
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}
