// Package report renders analysis results as styled terminal text.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
	"github.com/j-veylop/spendlens/internal/ui/components"
	"github.com/j-veylop/spendlens/internal/ui/styles"
)

// Width is the target render width for charts.
const Width = 72

// MaxFindings limits how many inactive licenses the waste section lists.
const MaxFindings = 20

// Report bundles everything the full report prints.
type Report struct {
	GeneratedAt     time.Time                  `json:"generatedAt"`
	Entities        map[string]string          `json:"entities"`
	Spend           models.TimeSeries          `json:"spend"`
	Ledger          []models.ReconciliationRow `json:"ledger"`
	Waste           models.WasteReport         `json:"waste"`
	ForecastMethod  models.ForecastMethod      `json:"forecastMethod"`
	Forecast        []models.ForecastPoint     `json:"forecast"`
	ForecastHistory models.TimeSeries          `json:"-"`
	ForecastErr     error                      `json:"-"`
	Recommendations []models.Recommendation    `json:"recommendations"`
}

// Render prints every section of r.
func Render(r Report) string {
	header := styles.TitleStyle.Render("spendlens report")
	if !r.GeneratedAt.IsZero() {
		header += "\n" + styles.HelpStyle.Render("snapshot generated "+r.GeneratedAt.UTC().Format(time.RFC3339))
	}

	forecast := Forecast(r.ForecastHistory, r.ForecastMethod, r.Forecast)
	if r.ForecastErr != nil {
		forecast = section("Forecast", styles.WarningTextStyle.Render(r.ForecastErr.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		Recommendations(r.Recommendations),
		Spend(r.Spend, r.Entities),
		forecast,
		Ledger(r.Ledger),
		Waste(r.Waste),
	)
}

func section(title string, body ...string) string {
	parts := append([]string{styles.SubTitleStyle.Render(title)}, body...)
	return styles.CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func money(d decimal.Decimal) string {
	return models.FormatMoney(d)
}

// Spend renders a cost selection with its per-period bars.
func Spend(ts models.TimeSeries, entities map[string]string) string {
	if ts.Invalid {
		return section("Spend", styles.ErrorTextStyle.Render("invalid selection: "+ts.Reason))
	}

	scope := "all entities"
	if id := ts.Selection.EntityID; id != "" {
		scope = lo.CoalesceOrEmpty(entities[id], id)
	}
	if sub := ts.Selection.SubscriptionID; sub != "" {
		scope += ", subscription " + sub
	}

	summary := fmt.Sprintf("%s  %s .. %s  (%s, source %s)",
		lipgloss.NewStyle().Bold(true).Render(money(ts.Total)),
		ts.Range.From.Format(models.DayLayout), ts.Range.To.Format(models.DayLayout),
		scope, ts.Source)

	if len(ts.Points) == 0 {
		return section("Spend", summary, styles.HelpStyle.Render("No cost data in range"))
	}

	values := lo.Map(ts.Points, func(p models.SeriesPoint, _ int) float64 { return p.Amount.InexactFloat64() })
	labels := lo.Map(ts.Points, func(p models.SeriesPoint, _ int) string {
		if p.Source == models.SourceNone {
			return p.Period + " (no data)"
		}
		return p.Period
	})

	return section("Spend",
		summary,
		components.RenderSparkline(values, Width),
		components.RenderBarChart(values, labels, Width),
	)
}

// Ledger renders the reconciliation ledger.
func Ledger(rows []models.ReconciliationRow) string {
	counts := lo.CountValuesBy(rows, func(r models.ReconciliationRow) models.ReconciliationStatus { return r.Status })
	statuses := []models.ReconciliationStatus{
		models.StatusMatched, models.StatusOver, models.StatusUnder, models.StatusCredit, models.StatusUnknown,
	}
	summary := strings.Join(lo.Map(statuses, func(s models.ReconciliationStatus, _ int) string {
		return styles.StatusStyle(s).Render(fmt.Sprintf("%s %d", s, counts[s]))
	}), "  ")

	table := components.Table{
		Headers:    []string{"Month", "Entity", "Invoiced", "API", "Variance", "Var %", "Status", "Credits"},
		RightAlign: map[int]bool{2: true, 3: true, 4: true, 5: true, 7: true},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.Month,
			lo.CoalesceOrEmpty(r.EntityName, r.EntityID),
			money(r.InvoicedTotal),
			money(r.APIReportedTotal),
			money(r.VarianceAbs),
			variancePct(r.VariancePct),
			styles.StatusStyle(r.Status).Render(string(r.Status)),
			lo.Ternary(r.HasCredit, money(r.CreditTotal), "-"),
		})
	}

	return section("Reconciliation", summary, components.RenderTable(table))
}

func variancePct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', 1, 64) + "%"
}

// Waste renders the license waste report.
func Waste(w models.WasteReport) string {
	t := w.Totals
	summary := strings.Join([]string{
		styles.SeverityStyle(models.SeverityCritical).Render(fmt.Sprintf("critical %d (%s)", t.CriticalCount, money(t.CriticalCost))),
		styles.SeverityStyle(models.SeverityHigh).Render(fmt.Sprintf("high %d (%s)", t.HighCount, money(t.HighCost))),
		styles.SeverityStyle(models.SeverityMedium).Render(fmt.Sprintf("medium %d (%s)", t.MediumCount, money(t.MediumCost))),
	}, "  ")
	totals := fmt.Sprintf("recoverable %s/month  underutilized %s  redundant %s  (%d paid, %d free and %d disabled excluded)",
		money(t.RecoverableMonthlyCost), money(t.UnderutilizedSavings), money(t.RedundantSavings),
		t.PaidAssignments, t.ExcludedFree, t.ExcludedDisabled)

	findings := append(append(append([]models.WasteFinding{}, w.Critical...), w.High...), w.Medium...)
	shown := findings
	if len(shown) > MaxFindings {
		shown = shown[:MaxFindings]
	}
	inactive := components.Table{
		Headers:    []string{"Severity", "Entity", "User", "SKU", "Inactive", "Cost"},
		RightAlign: map[int]bool{4: true, 5: true},
	}
	for _, f := range shown {
		inactive.Rows = append(inactive.Rows, []string{
			styles.SeverityStyle(f.Severity).Render(string(f.Severity)),
			f.EntityID,
			lo.CoalesceOrEmpty(f.UserPrincipalName, f.DisplayName, f.UserID),
			f.SkuName,
			lo.Ternary(f.NeverSignedIn, "never", strconv.Itoa(f.DaysInactive)+"d"),
			money(f.MonthlyCost),
		})
	}

	body := []string{summary, totals, components.RenderTable(inactive)}
	if len(findings) > len(shown) {
		body = append(body, styles.HelpStyle.Render(fmt.Sprintf("… %d more", len(findings)-len(shown))))
	}

	if len(w.Underutilized) > 0 {
		under := components.Table{
			Headers:    []string{"Entity", "SKU", "Prepaid", "Consumed", "Utilization", "Savings"},
			RightAlign: map[int]bool{2: true, 3: true, 4: true, 5: true},
		}
		for _, u := range w.Underutilized {
			under.Rows = append(under.Rows, []string{
				u.EntityID, u.SkuName,
				strconv.FormatInt(u.Prepaid, 10), strconv.FormatInt(u.Consumed, 10),
				fmt.Sprintf("%.0f%%", u.Utilization*100),
				money(u.EstimatedMonthlySavings),
			})
		}
		body = append(body, styles.SubTitleStyle.Render("Underutilized SKUs"), components.RenderTable(under))
	}

	if len(w.Redundant) > 0 {
		red := components.Table{
			Headers:    []string{"Entity", "User", "SKUs", "Cost", "Savings"},
			RightAlign: map[int]bool{3: true, 4: true},
		}
		for _, r := range w.Redundant {
			red.Rows = append(red.Rows, []string{
				r.EntityID, lo.CoalesceOrEmpty(r.DisplayName, r.UserID),
				strings.Join(r.SkuNames, ", "),
				money(r.MonthlyCost), money(r.PotentialSavings),
			})
		}
		body = append(body, styles.SubTitleStyle.Render("Redundant assignments"), components.RenderTable(red))
	}

	return section("License waste", body...)
}

// Forecast renders the monthly history and projected points.
func Forecast(history models.TimeSeries, method models.ForecastMethod, points []models.ForecastPoint) string {
	values := history.MonthlyValues()
	estimate := lo.Map(points, func(p models.ForecastPoint, _ int) float64 { return p.PointEstimate })
	lower := lo.Map(points, func(p models.ForecastPoint, _ int) float64 { return p.LowerBound })
	upper := lo.Map(points, func(p models.ForecastPoint, _ int) float64 { return p.UpperBound })

	chart := components.RenderForecastChart(values, estimate, lower, upper, Width, 8, string(method))
	legend := components.RenderLegend([]components.LegendItem{
		{Label: "history", Color: components.ChartHistoryColor},
		{Label: "forecast", Color: components.ChartForecastColor},
		{Label: "interval", Color: components.ChartBoundColor},
	})

	table := components.Table{
		Headers:    []string{"Period", "Estimate", "Lower", "Upper", "Confidence"},
		RightAlign: map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	for _, p := range points {
		table.Rows = append(table.Rows, []string{
			"+" + strconv.Itoa(p.PeriodOffset),
			money(decimal.NewFromFloat(p.PointEstimate)),
			money(decimal.NewFromFloat(p.LowerBound)),
			money(decimal.NewFromFloat(p.UpperBound)),
			fmt.Sprintf("%.0f%%", p.ConfidenceLevel*100),
		})
	}

	return section("Forecast ("+string(method)+")", chart, legend, components.RenderTable(table))
}

// Recommendations renders the ranked action list.
func Recommendations(recs []models.Recommendation) string {
	if len(recs) == 0 {
		return section("Recommendations", styles.SuccessTextStyle.Render("Nothing to act on"))
	}

	total := lo.Reduce(recs, func(acc decimal.Decimal, r models.Recommendation, _ int) decimal.Decimal {
		return acc.Add(r.EstimatedMonthlySavings)
	}, decimal.Zero)

	table := components.Table{
		Headers:      []string{"#", "Priority", "Category", "Action", "Savings/mo", "Effort"},
		RightAlign:   map[int]bool{0: true, 4: true},
		MaxCellWidth: 64,
	}
	for i, r := range recs {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(i + 1),
			styles.PriorityStyle(r.Priority).Render(string(r.Priority)),
			r.Category,
			r.Title,
			money(r.EstimatedMonthlySavings),
			string(r.Effort),
		})
	}

	return section("Recommendations",
		fmt.Sprintf("%d actions, up to %s/month", len(recs), money(total)),
		components.RenderTable(table),
	)
}
