// Package normalize turns one raw collector snapshot into canonical fact streams.
package normalize

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/j-veylop/spendlens/internal/config"
	"github.com/j-veylop/spendlens/internal/models"
)

// ErrNilSnapshot is returned when there is nothing to normalize.
var ErrNilSnapshot = errors.New("nil snapshot")

const defaultCurrency = "USD"

type normalizer struct {
	cat        *config.Catalog
	classifier *Classifier
	prices     *PriceBook
}

// Normalize converts a raw snapshot into a FactSet. Missing optional fields
// default to empty or zero values; only a nil snapshot is an error.
// A nil catalog means the built-in default catalog.
func Normalize(raw *models.RawSnapshot, cat *config.Catalog) (*models.FactSet, error) {
	if raw == nil {
		return nil, ErrNilSnapshot
	}
	if cat == nil {
		cat = config.DefaultCatalog()
	}

	n := &normalizer{
		cat:        cat,
		classifier: NewClassifier(cat),
		prices:     NewPriceBook(cat, raw.SkuPrices),
	}

	fs := &models.FactSet{GeneratedAt: raw.GeneratedAt}
	fs.Entities = n.entities(raw.Entities)

	subEntity := fs.SubscriptionEntities()
	names := fs.EntityNames()

	fs.Costs = n.costs(raw.CostRecords, subEntity, names)
	fs.MonthlyTotals = n.monthlyTotals(raw.MonthlyTotals)
	fs.SkuCapacities, fs.Licenses = n.licenses(raw.Licenses, raw.Users)
	fs.Invoices = n.invoices(raw.Invoices)
	fs.SkuPrices = n.prices.Prices()
	fs.Resources = n.resources(raw.Resources, subEntity)
	fs.Entities = completeEntities(fs)

	return fs, nil
}

func (n *normalizer) entities(rows []models.RawRecord) []models.Entity {
	out := make([]models.Entity, 0, len(rows))
	for _, row := range rows {
		id := getString(row, idKeys)
		if id == "" {
			continue
		}
		out = append(out, models.Entity{
			ID:            id,
			Name:          lo.CoalesceOrEmpty(getString(row, nameKeys), id),
			Subscriptions: getStringList(row, subscriptionsKeys, append([]string{"id"}, subscriptionKeys...)),
		})
	}
	return out
}

// completeEntities adds entities that facts reference but the directory omits.
func completeEntities(fs *models.FactSet) []models.Entity {
	known := lo.SliceToMap(fs.Entities, func(e models.Entity) (string, models.Entity) {
		return e.ID, e
	})
	add := func(id, name string) {
		if id == "" {
			return
		}
		if _, ok := known[id]; ok {
			return
		}
		known[id] = models.Entity{ID: id, Name: lo.CoalesceOrEmpty(name, id)}
	}

	for _, c := range fs.Costs {
		add(c.EntityID, c.EntityName)
	}
	for _, l := range fs.Licenses {
		add(l.EntityID, "")
	}
	for _, c := range fs.SkuCapacities {
		add(c.EntityID, "")
	}
	for _, inv := range fs.Invoices {
		add(inv.EntityID, "")
	}
	for _, r := range fs.Resources {
		add(r.EntityID, "")
	}

	out := lo.Values(known)
	slices.SortFunc(out, func(a, b models.Entity) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (n *normalizer) costs(rows []models.RawRecord, subEntity, names map[string]string) []models.CostFact {
	out := make([]models.CostFact, 0, len(rows))
	for _, row := range rows {
		out = append(out, n.cost(row, subEntity, names))
	}
	return out
}

// cost resolves the amount by fixed precedence: monthly aggregate, then
// daily, then generic. A monthly amount makes the fact month-bearing even
// when the row also carries a date.
func (n *normalizer) cost(row models.RawRecord, subEntity, names map[string]string) models.CostFact {
	f := models.CostFact{
		EntityID:       getString(row, entityIDKeys),
		EntityName:     getString(row, entityNameKeys),
		SubscriptionID: getString(row, subscriptionKeys),
		ResourceGroup:  getString(row, resourceGroupKey),
		ServiceName:    getString(row, serviceNameKeys),
		Currency:       lo.CoalesceOrEmpty(getString(row, currencyKeys), defaultCurrency),
	}
	if f.EntityID == "" {
		f.EntityID = subEntity[f.SubscriptionID]
	}
	if f.EntityName == "" {
		f.EntityName = names[f.EntityID]
	}

	date, hasDate := getTime(row, dateKeys)
	month := getMonth(row, monthKeys)
	if month == "" && !hasDate {
		month = getMonth(row, dateKeys)
	}

	if amount, ok := getDecimal(row, costMonthlyKeys); ok {
		f.Amount = amount
		if month == "" && hasDate {
			month = date.Format(models.MonthLayout)
		}
		f.Month = month
		return f
	}

	amount, ok := getDecimal(row, costDailyKeys)
	if !ok {
		amount, _ = getDecimal(row, costGenericKeys)
	}
	f.Amount = amount

	if hasDate {
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		f.Date = &day
	} else {
		f.Month = month
	}
	return f
}

func (n *normalizer) monthlyTotals(rows []models.RawRecord) []models.MonthlySubscriptionTotal {
	out := make([]models.MonthlySubscriptionTotal, 0, len(rows))
	for _, row := range rows {
		sub := getString(row, subscriptionKeys)
		month := getMonth(row, monthKeys)
		if sub == "" || month == "" {
			continue
		}
		total, _ := getDecimal(row, totalKeys)
		out = append(out, models.MonthlySubscriptionTotal{
			SubscriptionID: sub,
			Month:          month,
			Total:          total,
		})
	}
	return out
}

func (n *normalizer) licenses(sets map[string]models.RawLicenseSet, users map[string][]models.RawRecord) ([]models.SkuCapacity, []models.LicenseFact) {
	capacities := make([]models.SkuCapacity, 0)
	facts := make([]models.LicenseFact, 0)

	entityIDs := lo.Uniq(append(lo.Keys(sets), lo.Keys(users)...))
	slices.Sort(entityIDs)

	for _, entityID := range entityIDs {
		set := sets[entityID]

		skuNames := make(map[string]string)
		for _, row := range set.Skus {
			c := n.capacity(entityID, row)
			skuNames[c.SkuID] = c.SkuName
			capacities = append(capacities, c)
		}

		directory := make(map[string]models.RawRecord)
		for _, u := range users[entityID] {
			for _, key := range []string{getString(u, userIDKeys), getString(u, upnKeys)} {
				if key != "" {
					directory[strings.ToLower(key)] = u
				}
			}
		}

		seen := make(map[string]struct{})
		emit := func(userID, skuID, skuName string, row, user models.RawRecord) {
			if userID == "" || (skuID == "" && skuName == "") {
				return
			}
			key := userID + "|" + lo.CoalesceOrEmpty(skuID, skuName)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			if skuName == "" {
				skuName = lo.CoalesceOrEmpty(skuNames[skuID], skuID)
			}
			facts = append(facts, n.license(entityID, userID, skuID, skuName, row, user))
		}

		if len(set.Assignments) > 0 {
			for _, row := range set.Assignments {
				userID := getString(row, userIDKeys)
				user := directory[strings.ToLower(userID)]
				if user == nil {
					user = directory[strings.ToLower(getString(row, upnKeys))]
				}
				if u := getString(user, userIDKeys); u != "" {
					userID = u
				}
				emit(userID, getString(row, skuIDKeys), getString(row, skuNameKeys), row, user)
			}
			continue
		}

		// No assignment list: fall back to per-user assigned licenses.
		for _, user := range users[entityID] {
			userID := getString(user, userIDKeys)
			v, ok := first(user, assignedKeys)
			if !ok {
				continue
			}
			items, _ := v.([]any)
			for _, item := range items {
				if m, ok := asMap(item); ok {
					emit(userID, getString(m, skuIDKeys), getString(m, skuNameKeys), m, user)
					continue
				}
				emit(userID, toString(item), "", nil, user)
			}
		}
	}

	return capacities, facts
}

func (n *normalizer) capacity(entityID string, row models.RawRecord) models.SkuCapacity {
	skuID := getString(row, skuIDKeys)
	name := lo.CoalesceOrEmpty(getString(row, skuNameKeys), skuID)
	prepaid, _ := getInt(row, prepaidKeys)
	consumed, _ := getInt(row, consumedKeys)

	c := models.SkuCapacity{
		EntityID: entityID,
		SkuID:    lo.CoalesceOrEmpty(skuID, name),
		SkuName:  name,
		Prepaid:  prepaid,
		Consumed: consumed,
		IsPaid:   n.classifier.IsPaid(name),
	}
	if c.IsPaid {
		if p, ok := n.prices.Lookup(name, skuID); ok {
			c.MonthlyPrice = p.MonthlyPrice
		}
	}
	return c
}

// license builds one assignment fact. Row fields win over the user directory.
func (n *normalizer) license(entityID, userID, skuID, skuName string, row, user models.RawRecord) models.LicenseFact {
	f := models.LicenseFact{
		UserID:            userID,
		UserPrincipalName: lo.CoalesceOrEmpty(getString(row, upnKeys), getString(user, upnKeys)),
		DisplayName:       lo.CoalesceOrEmpty(getString(row, displayNameKeys), getString(user, displayNameKeys)),
		EntityID:          entityID,
		SkuID:             lo.CoalesceOrEmpty(skuID, skuName),
		SkuName:           skuName,
		IsPaid:            n.classifier.IsPaid(skuName),
		// Accounts are enabled unless a record says otherwise.
		AccountEnabled: getBool(row, enabledKeys, getBool(user, enabledKeys, true)),
	}

	if t, ok := getTime(row, lastSignInKeys); ok {
		f.LastSignIn = t
	} else if t, ok := getTime(user, lastSignInKeys); ok {
		f.LastSignIn = t
	}

	if f.IsPaid {
		if p, ok := n.prices.Lookup(skuName, skuID); ok {
			f.MonthlyCost = p.MonthlyPrice
			f.PriceSource = p.Source
		}
	}
	return f
}

func (n *normalizer) invoices(tables map[string][]models.RawRecord) []models.InvoiceFact {
	out := make([]models.InvoiceFact, 0)

	names := lo.Keys(tables)
	slices.Sort(names)

	for _, table := range names {
		binding := n.cat.BillingSources[table]
		for _, row := range tables[table] {
			entityID := lo.CoalesceOrEmpty(binding.Entity, getString(row, entityIDKeys))
			month := getMonth(row, monthKeys)
			if month == "" {
				if t, ok := getTime(row, invoiceDateKeys); ok {
					month = t.Format(models.MonthLayout)
				}
			}
			if entityID == "" || month == "" {
				continue
			}

			amount, _ := getDecimal(row, invoiceAmountKeys)
			credit, _ := getDecimal(row, invoiceCreditKeys)

			f := models.InvoiceFact{
				EntityID:          entityID,
				Month:             month,
				BillingSourceName: table,
				SourceKind:        sourceKind(table, binding.Kind, getString(row, sourceKindKeys)),
				RawAmount:         amount,
				CreditAmount:      credit.Abs(),
				InvoiceRef:        getString(row, invoiceRefKeys),
				Currency:          lo.CoalesceOrEmpty(getString(row, currencyKeys), defaultCurrency),
			}
			if m, ok := getDecimal(row, markupKeys); ok {
				f.MarkupPct = &m
			}
			out = append(out, f)
		}
	}
	return out
}

// sourceKind picks the billing kind from the catalog binding, then the row,
// then the table name.
func sourceKind(table string, candidates ...string) models.BillingSourceKind {
	for _, c := range candidates {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "csp":
			return models.SourceCSP
		case "direct":
			return models.SourceDirect
		case "estimated", "estimate":
			return models.SourceEstimated
		}
	}
	lower := strings.ToLower(table)
	switch {
	case strings.Contains(lower, "csp"):
		return models.SourceCSP
	case strings.Contains(lower, "estimat"):
		return models.SourceEstimated
	}
	return models.SourceDirect
}

func (n *normalizer) resources(rows []models.RawRecord, subEntity map[string]string) []models.Resource {
	out := make([]models.Resource, 0, len(rows))
	for _, row := range rows {
		r := models.Resource{
			ID:             getString(row, resourceIDKeys),
			Name:           getString(row, nameKeys),
			EntityID:       getString(row, entityIDKeys),
			SubscriptionID: getString(row, subscriptionKeys),
			ResourceGroup:  getString(row, resourceGroupKey),
			Type:           getString(row, resourceTypeKeys),
			Tags:           getStringMap(row, tagsKeys),
			Environment:    getString(row, environmentKeys),
			Offer:          getString(row, offerKeys),
		}
		if r.EntityID == "" {
			r.EntityID = subEntity[r.SubscriptionID]
		}
		if r.Environment == "" {
			r.Environment = tagValue(r.Tags, environmentKeys...)
		}
		if cost, ok := getDecimal(row, costMonthlyKeys); ok {
			r.MonthlyCost = cost
		} else {
			r.MonthlyCost, _ = getDecimal(row, costGenericKeys)
		}
		if r.ID == "" {
			r.ID = r.Name
		}
		out = append(out, r)
	}
	return out
}

// tagValue reads a tag case-insensitively.
func tagValue(tags map[string]string, keys ...string) string {
	for k, v := range tags {
		for _, want := range keys {
			if strings.EqualFold(k, want) && v != "" {
				return v
			}
		}
	}
	return ""
}
