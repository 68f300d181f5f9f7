// Package reconcile merges named billing sources into one ledger row per
// entity and month and classifies variance against API-reported spend.
package reconcile

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

// CreditPolicy selects which billing legs have credits subtracted.
type CreditPolicy string

const (
	// CreditPolicyCSPOnly subtracts credits only on CSP-invoiced legs.
	CreditPolicyCSPOnly CreditPolicy = "csp-only"
	// CreditPolicyAll subtracts credits on every leg.
	CreditPolicyAll CreditPolicy = "all"
)

// Options configures the ledger.
type Options struct {
	// OverThreshold and UnderThreshold are fractions (0.10 = 10%).
	OverThreshold  float64
	UnderThreshold float64
	CreditPolicy   CreditPolicy
	// Months fixes the calendar window. Empty means every month between
	// the earliest and latest month present on either side.
	Months []string
	// SubscriptionEntities overrides the lookup derived from entities.
	SubscriptionEntities map[string]string
}

// DefaultOptions returns a ±10% window with CSP-only credits.
func DefaultOptions() Options {
	return Options{
		OverThreshold:  0.10,
		UnderThreshold: 0.10,
		CreditPolicy:   CreditPolicyCSPOnly,
	}
}

var hundred = decimal.NewFromInt(100)

// Reconcile produces one row per (entity, month) in the window. Months where
// only one side has data are tolerated and classified, never dropped.
func Reconcile(invoices []models.InvoiceFact, totals []models.MonthlySubscriptionTotal, entities []models.Entity, opts Options) []models.ReconciliationRow {
	if opts.OverThreshold <= 0 {
		opts.OverThreshold = DefaultOptions().OverThreshold
	}
	if opts.UnderThreshold <= 0 {
		opts.UnderThreshold = DefaultOptions().UnderThreshold
	}
	if opts.CreditPolicy == "" {
		opts.CreditPolicy = CreditPolicyCSPOnly
	}

	subEntity := opts.SubscriptionEntities
	if subEntity == nil {
		subEntity = make(map[string]string)
		for _, e := range entities {
			for _, sub := range e.Subscriptions {
				subEntity[sub] = e.ID
			}
		}
	}
	names := lo.SliceToMap(entities, func(e models.Entity) (string, string) {
		return e.ID, e.Name
	})

	type key struct{ entity, month string }

	invoiced := make(map[key][]models.InvoiceFact)
	for _, inv := range invoices {
		k := key{inv.EntityID, inv.Month}
		invoiced[k] = append(invoiced[k], inv)
	}

	api := make(map[key]decimal.Decimal)
	for _, t := range totals {
		entity, ok := subEntity[t.SubscriptionID]
		if !ok {
			continue
		}
		k := key{entity, t.Month}
		api[k] = api[k].Add(t.Total)
	}

	entityIDs := lo.Map(entities, func(e models.Entity, _ int) string { return e.ID })
	var seenMonths []string
	for k := range invoiced {
		entityIDs = append(entityIDs, k.entity)
		seenMonths = append(seenMonths, k.month)
	}
	for k := range api {
		entityIDs = append(entityIDs, k.entity)
		seenMonths = append(seenMonths, k.month)
	}
	entityIDs = lo.Uniq(entityIDs)
	slices.Sort(entityIDs)

	months := opts.Months
	if len(months) == 0 {
		months = monthSpan(seenMonths)
	}

	rows := make([]models.ReconciliationRow, 0, len(entityIDs)*len(months))
	for _, entity := range entityIDs {
		for _, month := range months {
			k := key{entity, month}
			row := buildRow(entity, month, invoiced[k], api[k], opts)
			row.EntityName = names[entity]
			rows = append(rows, row)
		}
	}
	return rows
}

func buildRow(entity, month string, lines []models.InvoiceFact, apiTotal decimal.Decimal, opts Options) models.ReconciliationRow {
	row := models.ReconciliationRow{
		ID:               models.StableID("ledger", entity, month),
		Month:            month,
		EntityID:         entity,
		APIReportedTotal: apiTotal,
		Sources:          legs(lines, opts.CreditPolicy),
	}

	for _, src := range row.Sources {
		row.InvoicedTotal = row.InvoicedTotal.Add(src.Net)
		row.CreditTotal = row.CreditTotal.Add(src.Credit)
	}
	seen := decimal.Zero
	for _, l := range lines {
		seen = seen.Add(l.CreditAmount)
		if l.HasCredit() {
			row.HasCredit = true
		}
	}
	row.UnappliedCredit = seen.Sub(row.CreditTotal)

	row.VarianceAbs = row.InvoicedTotal.Sub(apiTotal)
	if apiTotal.IsPositive() {
		pct := row.VarianceAbs.Div(apiTotal).Mul(hundred).InexactFloat64()
		row.VariancePct = &pct
	}
	row.Status = classify(row, opts)
	return row
}

// legs folds invoice lines into one amount per billing source. Markup is
// applied to the raw amount before any credit is subtracted.
func legs(lines []models.InvoiceFact, policy CreditPolicy) []models.SourceAmount {
	bySource := make(map[string]*models.SourceAmount)
	for _, l := range lines {
		src, ok := bySource[l.BillingSourceName]
		if !ok {
			src = &models.SourceAmount{Name: l.BillingSourceName, Kind: l.SourceKind}
			bySource[l.BillingSourceName] = src
		}

		gross := l.RawAmount
		if l.MarkupPct != nil {
			gross = gross.Mul(decimal.NewFromInt(1).Add(l.MarkupPct.Div(hundred)))
		}
		src.Gross = src.Gross.Add(gross)
		src.Net = src.Net.Add(gross)

		if policy == CreditPolicyAll || l.SourceKind == models.SourceCSP {
			src.Credit = src.Credit.Add(l.CreditAmount)
			src.Net = src.Net.Sub(l.CreditAmount)
		}
	}

	out := make([]models.SourceAmount, 0, len(bySource))
	for _, src := range bySource {
		out = append(out, *src)
	}
	slices.SortFunc(out, func(a, b models.SourceAmount) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// classify applies the status rules in order. Threshold comparisons are done
// on decimals so a variance exactly at the threshold is matched.
func classify(row models.ReconciliationRow, opts Options) models.ReconciliationStatus {
	invoicedZero := row.InvoicedTotal.IsZero()
	apiZero := row.APIReportedTotal.IsZero()

	switch {
	case row.HasCredit && (invoicedZero || apiZero):
		return models.StatusCredit
	case invoicedZero && apiZero:
		return models.StatusUnknown
	case !row.APIReportedTotal.IsPositive():
		// No usable API figure: the variance is undefined, so the sign of
		// the invoiced side decides.
		if row.InvoicedTotal.IsPositive() {
			return models.StatusOver
		}
		return models.StatusUnder
	}

	diff := row.VarianceAbs
	if diff.Sign() >= 0 {
		limit := row.APIReportedTotal.Mul(decimal.NewFromFloat(opts.OverThreshold))
		if diff.LessThanOrEqual(limit) {
			return models.StatusMatched
		}
		return models.StatusOver
	}
	limit := row.APIReportedTotal.Mul(decimal.NewFromFloat(opts.UnderThreshold))
	if diff.Abs().LessThanOrEqual(limit) {
		return models.StatusMatched
	}
	return models.StatusUnder
}

// monthSpan lists every month from the earliest to the latest of months.
func monthSpan(months []string) []string {
	var parsed []time.Time
	for _, m := range months {
		if t, err := time.Parse(models.MonthLayout, m); err == nil {
			parsed = append(parsed, t)
		}
	}
	if len(parsed) == 0 {
		return nil
	}

	earliest, latest := parsed[0], parsed[0]
	for _, t := range parsed[1:] {
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
	}
	return models.DateRange{From: earliest, To: latest}.Months()
}

// Window returns the trailing n months ending at asOf, oldest first.
func Window(asOf time.Time, n int) []string {
	if n < 1 {
		return nil
	}
	end := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	return models.DateRange{From: end.AddDate(0, -(n - 1), 0), To: end}.Months()
}
