// Package waste analyzes paid license assignments for inactivity,
// underutilized prepaid capacity, and redundant SKUs.
package waste

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

// Options holds the analyzer thresholds.
type Options struct {
	CriticalDays         int
	HighDays             int
	MediumDays           int
	UtilizationThreshold float64
	MinPrepaid           int64
	AsOf                 time.Time
}

// DefaultOptions returns 90/60/30 day tiers, a 70% utilization floor and a
// minimum of 5 prepaid seats.
func DefaultOptions() Options {
	return Options{
		CriticalDays:         90,
		HighDays:             60,
		MediumDays:           30,
		UtilizationThreshold: 0.70,
		MinPrepaid:           5,
	}
}

// Analyze builds a waste report. Free SKUs and disabled accounts are
// excluded entirely. A missing sign-in counts as infinitely stale.
func Analyze(licenses []models.LicenseFact, capacities []models.SkuCapacity, opts Options) models.WasteReport {
	if opts.AsOf.IsZero() {
		opts.AsOf = time.Now().UTC()
	}

	report := models.WasteReport{
		Critical:      make([]models.WasteFinding, 0),
		High:          make([]models.WasteFinding, 0),
		Medium:        make([]models.WasteFinding, 0),
		Underutilized: make([]models.UnderutilizedSku, 0),
		Redundant:     make([]models.RedundantAssignment, 0),
	}

	var eligible []models.LicenseFact
	for _, l := range licenses {
		switch {
		case !l.IsPaid:
			report.Totals.ExcludedFree++
		case !l.AccountEnabled:
			report.Totals.ExcludedDisabled++
		default:
			eligible = append(eligible, l)
		}
	}
	report.Totals.PaidAssignments = len(eligible)

	for _, l := range eligible {
		f := finding(l, opts.AsOf)
		severity, ok := tier(f, opts)
		if !ok {
			continue
		}
		f.Severity = severity
		switch severity {
		case models.SeverityCritical:
			report.Critical = append(report.Critical, f)
		case models.SeverityHigh:
			report.High = append(report.High, f)
		case models.SeverityMedium:
			report.Medium = append(report.Medium, f)
		}
	}
	for _, bucket := range [][]models.WasteFinding{report.Critical, report.High, report.Medium} {
		slices.SortStableFunc(bucket, compareFindings)
	}

	report.Underutilized = underutilized(capacities, opts)
	report.Redundant = redundant(eligible)

	t := &report.Totals
	t.CriticalCount, t.CriticalCost = len(report.Critical), sumFindings(report.Critical)
	t.HighCount, t.HighCost = len(report.High), sumFindings(report.High)
	t.MediumCount, t.MediumCost = len(report.Medium), sumFindings(report.Medium)
	t.RecoverableMonthlyCost = t.CriticalCost.Add(t.HighCost).Add(t.MediumCost)
	for _, u := range report.Underutilized {
		t.UnderutilizedSavings = t.UnderutilizedSavings.Add(u.EstimatedMonthlySavings)
	}
	for _, r := range report.Redundant {
		t.RedundantSavings = t.RedundantSavings.Add(r.PotentialSavings)
	}

	return report
}

func finding(l models.LicenseFact, asOf time.Time) models.WasteFinding {
	f := models.WasteFinding{
		UserID:            l.UserID,
		UserPrincipalName: l.UserPrincipalName,
		DisplayName:       l.DisplayName,
		EntityID:          l.EntityID,
		SkuID:             l.SkuID,
		SkuName:           l.SkuName,
		MonthlyCost:       l.MonthlyCost,
		LastSignIn:        l.LastSignIn,
	}
	if l.LastSignIn == nil {
		f.NeverSignedIn = true
		return f
	}
	f.DaysInactive = max(calendarDays(*l.LastSignIn, asOf), 0)
	return f
}

// calendarDays counts UTC date boundaries between from and to, ignoring the
// time of day on either side.
func calendarDays(from, to time.Time) int {
	return int(utcDate(to).Sub(utcDate(from)).Hours() / 24)
}

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// tier places a finding in exactly one severity bucket, or none when it is
// more recent than the medium threshold.
func tier(f models.WasteFinding, opts Options) (models.WasteSeverity, bool) {
	inactivity := f.Inactivity()
	switch {
	case inactivity >= float64(opts.CriticalDays):
		return models.SeverityCritical, true
	case inactivity >= float64(opts.HighDays):
		return models.SeverityHigh, true
	case inactivity >= float64(opts.MediumDays):
		return models.SeverityMedium, true
	}
	return "", false
}

func compareFindings(a, b models.WasteFinding) int {
	if c := cmp.Compare(b.Inactivity(), a.Inactivity()); c != 0 {
		return c
	}
	if c := b.MonthlyCost.Cmp(a.MonthlyCost); c != 0 {
		return c
	}
	if c := strings.Compare(a.UserID, b.UserID); c != 0 {
		return c
	}
	return strings.Compare(a.SkuName, b.SkuName)
}

func sumFindings(findings []models.WasteFinding) decimal.Decimal {
	return lo.Reduce(findings, func(acc decimal.Decimal, f models.WasteFinding, _ int) decimal.Decimal {
		return acc.Add(f.MonthlyCost)
	}, decimal.Zero)
}

// underutilized flags paid SKUs with more than MinPrepaid seats whose
// consumed/prepaid ratio is under the threshold.
func underutilized(capacities []models.SkuCapacity, opts Options) []models.UnderutilizedSku {
	out := make([]models.UnderutilizedSku, 0)
	for _, c := range capacities {
		if !c.IsPaid || c.Prepaid <= 0 || c.Prepaid <= opts.MinPrepaid {
			continue
		}
		utilization := float64(c.Consumed) / float64(c.Prepaid)
		if utilization >= opts.UtilizationThreshold {
			continue
		}
		unused := max(c.Prepaid-c.Consumed, 0)
		out = append(out, models.UnderutilizedSku{
			EntityID:                c.EntityID,
			SkuID:                   c.SkuID,
			SkuName:                 c.SkuName,
			Prepaid:                 c.Prepaid,
			Consumed:                c.Consumed,
			Utilization:             utilization,
			MonthlyPrice:            c.MonthlyPrice,
			EstimatedMonthlySavings: c.MonthlyPrice.Mul(decimal.NewFromInt(unused)),
		})
	}
	slices.SortStableFunc(out, func(a, b models.UnderutilizedSku) int {
		if c := b.EstimatedMonthlySavings.Cmp(a.EstimatedMonthlySavings); c != 0 {
			return c
		}
		return strings.Compare(a.EntityID+a.SkuName, b.EntityID+b.SkuName)
	})
	return out
}

// redundant flags users holding more than one distinct paid SKU. Savings
// assume all but the most expensive SKU can be removed.
func redundant(eligible []models.LicenseFact) []models.RedundantAssignment {
	byUser := lo.GroupBy(eligible, func(l models.LicenseFact) string {
		return l.EntityID + "\x00" + l.UserID
	})

	out := make([]models.RedundantAssignment, 0)
	for _, facts := range byUser {
		facts = lo.UniqBy(facts, func(l models.LicenseFact) string { return l.SkuID })
		if len(facts) < 2 {
			continue
		}
		slices.SortFunc(facts, func(a, b models.LicenseFact) int {
			return strings.Compare(a.SkuName, b.SkuName)
		})

		total := decimal.Zero
		highest := decimal.Zero
		for _, l := range facts {
			total = total.Add(l.MonthlyCost)
			highest = decimal.Max(highest, l.MonthlyCost)
		}
		out = append(out, models.RedundantAssignment{
			UserID:           facts[0].UserID,
			DisplayName:      facts[0].DisplayName,
			EntityID:         facts[0].EntityID,
			SkuIDs:           lo.Map(facts, func(l models.LicenseFact, _ int) string { return l.SkuID }),
			SkuNames:         lo.Map(facts, func(l models.LicenseFact, _ int) string { return l.SkuName }),
			MonthlyCost:      total,
			PotentialSavings: total.Sub(highest),
		})
	}
	slices.SortFunc(out, func(a, b models.RedundantAssignment) int {
		if c := b.PotentialSavings.Cmp(a.PotentialSavings); c != 0 {
			return c
		}
		if c := strings.Compare(a.EntityID, b.EntityID); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}
