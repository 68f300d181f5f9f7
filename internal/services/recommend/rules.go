package recommend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
	"github.com/j-veylop/spendlens/internal/services/anomaly"
)

func inactiveLicenses(in Input, opts Options) (models.Recommendation, bool) {
	w := in.Waste
	findings := slices.Concat(w.Critical, w.High, w.Medium)
	if len(findings) == 0 {
		return models.Recommendation{}, false
	}

	never := lo.CountBy(findings, func(f models.WasteFinding) bool { return f.NeverSignedIn })
	priority := models.PriorityHighValue
	if len(findings) > opts.InactiveCriticalCount {
		priority = models.PriorityCritical
	}

	return models.Recommendation{
		Priority: priority,
		Category: "licensing",
		Title: fmt.Sprintf("Reclaim %d inactive paid licenses (%d critical, %d never signed in) costing %s/month",
			len(findings), len(w.Critical), never, models.FormatMoney(w.Totals.RecoverableMonthlyCost)),
		EstimatedMonthlySavings: w.Totals.RecoverableMonthlyCost,
		Effort:                  models.EffortLow,
		EvidenceRefs: lo.Map(findings, func(f models.WasteFinding, _ int) string {
			return "license:" + f.EntityID + "/" + f.UserID + "/" + f.SkuName
		}),
	}, true
}

func underutilizedSkus(in Input, _ Options) (models.Recommendation, bool) {
	skus := in.Waste.Underutilized
	if len(skus) == 0 {
		return models.Recommendation{}, false
	}

	var unused int64
	for _, s := range skus {
		unused += s.Prepaid - s.Consumed
	}

	return models.Recommendation{
		Priority: models.PriorityHighValue,
		Category: "licensing",
		Title: fmt.Sprintf("Reduce prepaid seats on %d underutilized SKUs (%d unused seats, %s/month)",
			len(skus), unused, models.FormatMoney(in.Waste.Totals.UnderutilizedSavings)),
		EstimatedMonthlySavings: in.Waste.Totals.UnderutilizedSavings,
		Effort:                  models.EffortMedium,
		EvidenceRefs: lo.Map(skus, func(s models.UnderutilizedSku, _ int) string {
			return fmt.Sprintf("sku:%s/%s@%.0f%%", s.EntityID, s.SkuName, s.Utilization*100)
		}),
	}, true
}

func redundantLicenses(in Input, _ Options) (models.Recommendation, bool) {
	users := in.Waste.Redundant
	if len(users) == 0 {
		return models.Recommendation{}, false
	}

	return models.Recommendation{
		Priority: models.PriorityQuickWin,
		Category: "licensing",
		Title: fmt.Sprintf("Remove overlapping SKUs from %d users holding multiple paid licenses (%s/month)",
			len(users), models.FormatMoney(in.Waste.Totals.RedundantSavings)),
		EstimatedMonthlySavings: in.Waste.Totals.RedundantSavings,
		Effort:                  models.EffortLow,
		EvidenceRefs: lo.Map(users, func(r models.RedundantAssignment, _ int) string {
			return "user:" + r.EntityID + "/" + r.UserID + "=" + strings.Join(r.SkuNames, "+")
		}),
	}, true
}

func untaggedResources(in Input, opts Options) (models.Recommendation, bool) {
	if len(opts.RequiredTags) == 0 || len(in.Resources) == 0 {
		return models.Recommendation{}, false
	}

	untagged := lo.Filter(in.Resources, func(r models.Resource, _ int) bool {
		return len(missingTags(r, opts.RequiredTags)) > 0
	})
	if len(untagged) == 0 {
		return models.Recommendation{}, false
	}

	unallocated := sumResources(untagged)
	pct := float64(len(untagged)) / float64(len(in.Resources)) * 100

	return models.Recommendation{
		Priority: models.PriorityHighValue,
		Category: "governance",
		Title: fmt.Sprintf("Tag %d of %d resources (%.0f%%) missing %s; %s/month is unallocated",
			len(untagged), len(in.Resources), pct, strings.Join(opts.RequiredTags, "/"), models.FormatMoney(unallocated)),
		EstimatedMonthlySavings: decimal.Zero,
		Effort:                  models.EffortMedium,
		EvidenceRefs: lo.Map(untagged, func(r models.Resource, _ int) string {
			return "resource:" + r.ID
		}),
	}, true
}

func missingTags(r models.Resource, required []string) []string {
	return lo.Filter(required, func(tag string, _ int) bool {
		for k, v := range r.Tags {
			if strings.EqualFold(k, tag) && strings.TrimSpace(v) != "" {
				return false
			}
		}
		return true
	})
}

func devTestPricing(in Input, opts Options) (models.Recommendation, bool) {
	if opts.DevTestDiscount <= 0 {
		return models.Recommendation{}, false
	}

	candidates := lo.Filter(in.Resources, func(r models.Resource, _ int) bool {
		return isDevTest(r, opts.DevTestMarkers) && !onDevTestOffer(r, opts.DevTestOffers)
	})
	if len(candidates) == 0 {
		return models.Recommendation{}, false
	}

	cost := sumResources(candidates)
	savings := cost.Mul(decimal.NewFromFloat(opts.DevTestDiscount)).Round(2)

	return models.Recommendation{
		Priority: models.PriorityQuickWin,
		Category: "pricing",
		Title: fmt.Sprintf("Move %d dev/test resources off production pricing (%s/month at production rates)",
			len(candidates), models.FormatMoney(cost)),
		EstimatedMonthlySavings: savings,
		Effort:                  models.EffortLow,
		EvidenceRefs: lo.Map(candidates, func(r models.Resource, _ int) string {
			return "resource:" + r.ID
		}),
	}, true
}

// isDevTest matches markers against the environment exactly and against
// name and resource group tokens.
func isDevTest(r models.Resource, markers []string) bool {
	for _, m := range markers {
		if strings.EqualFold(r.Environment, m) {
			return true
		}
	}
	split := func(c rune) bool { return c == '-' || c == '_' || c == '.' || c == ' ' || c == '/' }
	tokens := append(strings.FieldsFunc(r.Name, split), strings.FieldsFunc(r.ResourceGroup, split)...)
	for _, tok := range tokens {
		for _, m := range markers {
			if strings.EqualFold(tok, m) {
				return true
			}
		}
	}
	return false
}

func onDevTestOffer(r models.Resource, offers []string) bool {
	for _, o := range offers {
		if r.Offer != "" && strings.Contains(strings.ToLower(r.Offer), strings.ToLower(o)) {
			return true
		}
	}
	return false
}

func sumResources(rs []models.Resource) decimal.Decimal {
	return lo.Reduce(rs, func(acc decimal.Decimal, r models.Resource, _ int) decimal.Decimal {
		return acc.Add(r.MonthlyCost)
	}, decimal.Zero)
}

func overInvoiced(in Input, _ Options) (models.Recommendation, bool) {
	rows := lo.Filter(in.Reconciliation, func(r models.ReconciliationRow, _ int) bool {
		return r.Status == models.StatusOver && r.VarianceAbs.IsPositive()
	})
	if len(rows) == 0 {
		return models.Recommendation{}, false
	}

	excess := lo.Reduce(rows, func(acc decimal.Decimal, r models.ReconciliationRow, _ int) decimal.Decimal {
		return acc.Add(r.VarianceAbs)
	}, decimal.Zero)

	return models.Recommendation{
		Priority: models.PriorityHighValue,
		Category: "billing",
		Title: fmt.Sprintf("Dispute %d over-invoiced entity-months (%s above API-reported spend)",
			len(rows), models.FormatMoney(excess)),
		EstimatedMonthlySavings: excess,
		Effort:                  models.EffortMedium,
		EvidenceRefs: lo.Map(rows, func(r models.ReconciliationRow, _ int) string {
			return "ledger:" + r.EntityID + "/" + r.Month
		}),
	}, true
}

func spendAnomalies(in Input, opts Options) (models.Recommendation, bool) {
	found := in.Anomalies
	if found == nil {
		found = anomaly.DetectSeries(in.CostAggregate, anomaly.Options{Sensitivity: opts.AnomalySensitivity})
	}
	spikes := lo.Filter(found, func(a models.Anomaly, _ int) bool { return a.Deviation > 0 })
	if len(spikes) == 0 {
		return models.Recommendation{}, false
	}

	largest := lo.MaxBy(spikes, func(a, b models.Anomaly) bool { return a.PercentChange > b.PercentChange })
	excess := decimal.Zero
	for _, a := range spikes {
		excess = excess.Add(decimal.NewFromFloat(a.Actual - a.Expected))
	}
	excess = excess.Round(2)

	return models.Recommendation{
		Priority: models.PriorityHighValue,
		Category: "cost",
		Title: fmt.Sprintf("Investigate %d spend spikes (largest +%.0f%% in %s, %s above baseline)",
			len(spikes), largest.PercentChange, largest.Period, models.FormatMoney(excess)),
		EstimatedMonthlySavings: excess,
		Effort:                  models.EffortMedium,
		EvidenceRefs: lo.Map(spikes, func(a models.Anomaly, _ int) string {
			return "period:" + a.Period
		}),
	}, true
}
