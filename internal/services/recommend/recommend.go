// Package recommend turns analysis outputs into ranked, cost-quantified
// action items. Every rule is independent: it reads the shared input and
// emits at most one recommendation.
package recommend

import (
	"cmp"
	"slices"
	"strings"

	"github.com/j-veylop/spendlens/internal/models"
	"github.com/j-veylop/spendlens/internal/services/anomaly"
)

// Input bundles the upstream outputs the rules read.
type Input struct {
	CostAggregate  models.TimeSeries
	Waste          models.WasteReport
	Reconciliation []models.ReconciliationRow
	Resources      []models.Resource
	// Anomalies, when nil, are detected from CostAggregate.
	Anomalies []models.Anomaly
}

// Options holds rule knobs.
type Options struct {
	InactiveCriticalCount int
	DevTestDiscount       float64
	AnomalySensitivity    anomaly.Sensitivity
	RequiredTags          []string
	DevTestMarkers        []string
	DevTestOffers         []string
	// Rules replaces the default rule set when non-nil.
	Rules []Rule
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		InactiveCriticalCount: 10,
		DevTestDiscount:       0.30,
		AnomalySensitivity:    anomaly.SensitivityMedium,
		RequiredTags:          []string{"cost-center", "owner"},
		DevTestMarkers:        []string{"dev", "test", "qa", "sandbox", "staging"},
		DevTestOffers:         []string{"MS-AZR-0148P", "MS-AZR-0060P", "DevTest"},
	}
}

// Rule evaluates one trigger condition.
type Rule struct {
	Name     string
	Evaluate func(in Input, opts Options) (models.Recommendation, bool)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "inactive-licenses", Evaluate: inactiveLicenses},
		{Name: "underutilized-skus", Evaluate: underutilizedSkus},
		{Name: "redundant-licenses", Evaluate: redundantLicenses},
		{Name: "untagged-resources", Evaluate: untaggedResources},
		{Name: "devtest-pricing", Evaluate: devTestPricing},
		{Name: "over-invoiced", Evaluate: overInvoiced},
		{Name: "spend-anomalies", Evaluate: spendAnomalies},
	}
}

// Generate runs every rule and orders the results by priority rank, then
// estimated savings descending.
func Generate(in Input, opts Options) []models.Recommendation {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	out := make([]models.Recommendation, 0, len(rules))
	for _, r := range rules {
		rec, ok := r.Evaluate(in, opts)
		if !ok {
			continue
		}
		rec.Rule = r.Name
		rec.ID = models.StableID("recommendation", r.Name)
		if rec.EvidenceRefs == nil {
			rec.EvidenceRefs = []string{}
		}
		out = append(out, rec)
	}

	slices.SortStableFunc(out, compare)
	return out
}

func compare(a, b models.Recommendation) int {
	if c := cmp.Compare(a.Priority.Rank(), b.Priority.Rank()); c != 0 {
		return c
	}
	if c := b.EstimatedMonthlySavings.Cmp(a.EstimatedMonthlySavings); c != 0 {
		return c
	}
	if c := strings.Compare(a.Category, b.Category); c != 0 {
		return c
	}
	return strings.Compare(a.Title, b.Title)
}
