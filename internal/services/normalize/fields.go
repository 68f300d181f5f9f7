package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

// Field precedence tables. The first key present on a record wins.
// Dotted keys walk nested objects.
var (
	costMonthlyKeys  = []string{"monthlyCost", "MonthlyCost", "monthly_cost", "monthlyTotal", "totalMonthlyCost"}
	costDailyKeys    = []string{"dailyCost", "DailyCost", "daily_cost", "costInBillingCurrency", "CostInBillingCurrency", "PreTaxCost"}
	costGenericKeys  = []string{"cost", "Cost", "amount", "Amount"}
	dateKeys         = []string{"date", "Date", "usageDate", "UsageDate", "day"}
	monthKeys        = []string{"month", "Month", "billingMonth", "billingPeriod", "BillingPeriod", "invoiceMonth", "period"}
	entityIDKeys     = []string{"entityId", "entity", "brand", "tenant", "tenantId"}
	entityNameKeys   = []string{"entityName", "brandName", "tenantName"}
	subscriptionKeys = []string{"subscriptionId", "SubscriptionId", "subscription_id", "subscriptionGuid", "subscription"}
	resourceGroupKey = []string{"resourceGroup", "ResourceGroup", "resourceGroupName", "resource_group"}
	serviceNameKeys  = []string{"serviceName", "ServiceName", "meterCategory", "MeterCategory", "service"}
	currencyKeys     = []string{"currency", "Currency", "billingCurrency", "BillingCurrency"}
	totalKeys        = []string{"total", "Total", "monthlyCost", "cost", "amount"}

	idKeys            = []string{"id", "entityId", "key"}
	nameKeys          = []string{"name", "displayName", "entityName"}
	subscriptionsKeys = []string{"subscriptions", "subscriptionIds"}

	skuIDKeys       = []string{"skuId", "SkuId", "sku_id"}
	skuNameKeys     = []string{"skuPartNumber", "skuName", "sku", "SkuPartNumber"}
	prepaidKeys     = []string{"prepaidUnits.enabled", "prepaidUnits", "enabledUnits", "enabled_units", "purchased"}
	consumedKeys    = []string{"consumedUnits", "consumed_units", "assignedUnits", "assigned"}
	userIDKeys      = []string{"userId", "user_id", "id", "objectId"}
	upnKeys         = []string{"userPrincipalName", "upn", "mail"}
	displayNameKeys = []string{"displayName", "name"}
	enabledKeys     = []string{"accountEnabled", "enabled", "isEnabled"}
	lastSignInKeys  = []string{"signInActivity.lastSignInDateTime", "lastSignInDateTime", "lastSignIn", "lastSignInDate"}
	assignedKeys    = []string{"assignedLicenses", "licenses"}

	priceKeys       = []string{"monthlyPrice", "unitPrice", "price", "listPrice"}
	priceSourceKeys = []string{"source", "priceSource"}

	invoiceAmountKeys = []string{"rawAmount", "amount", "subtotal", "total", "cost"}
	invoiceCreditKeys = []string{"creditAmount", "credit", "credits"}
	markupKeys        = []string{"markupPct", "markup", "markupPercent"}
	invoiceRefKeys    = []string{"invoiceRef", "invoiceId", "invoiceNumber", "reference"}
	invoiceDateKeys   = []string{"invoiceDate", "date", "billingDate"}
	sourceKindKeys    = []string{"sourceKind", "kind", "billingType"}

	resourceIDKeys   = []string{"id", "resourceId", "ResourceId"}
	resourceTypeKeys = []string{"type", "resourceType", "ResourceType"}
	tagsKeys         = []string{"tags", "Tags"}
	environmentKeys  = []string{"environment", "env"}
	offerKeys        = []string{"offer", "offerId", "offerType", "quotaId"}
)

// lookup returns the value at path, walking nested objects on dots.
func lookup(rec map[string]any, path string) (any, bool) {
	if v, ok := rec[path]; ok {
		return v, v != nil
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var current any = rec
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// first returns the first present value among keys.
func first(rec map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := lookup(rec, k); ok {
			return v, true
		}
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case models.RawRecord:
		return m, true
	}
	return nil, false
}

func getString(rec map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := lookup(rec, k)
		if !ok {
			continue
		}
		if s := toString(v); s != "" {
			return s
		}
	}
	return ""
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// getDecimal returns the first parseable amount among keys.
func getDecimal(rec map[string]any, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := lookup(rec, k)
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(val)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
	return decimal.Zero, false
}

func getInt(rec map[string]any, keys []string) (int64, bool) {
	d, ok := getDecimal(rec, keys)
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

func getBool(rec map[string]any, keys []string, defaultVal bool) bool {
	v, ok := first(rec, keys)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	models.DayLayout,
	"01/02/2006",
	"20060102",
}

// getTime parses the first present timestamp among keys. Numeric
// yyyymmdd values are accepted since usage exports emit them.
func getTime(rec map[string]any, keys []string) (*time.Time, bool) {
	for _, k := range keys {
		v, ok := lookup(rec, k)
		if !ok {
			continue
		}
		if t, ok := parseTime(toString(v)); ok {
			return &t, true
		}
	}
	return nil, false
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// getMonth returns a YYYY-MM string from the first parseable month field.
func getMonth(rec map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := lookup(rec, k)
		if !ok {
			continue
		}
		if m, ok := parseMonth(toString(v)); ok {
			return m
		}
	}
	return ""
}

func parseMonth(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, layout := range []string{models.MonthLayout, "200601", "2006/01", "January 2006", "Jan 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(models.MonthLayout), true
		}
	}
	if t, ok := parseTime(s); ok {
		return t.Format(models.MonthLayout), true
	}
	return "", false
}

// getStringList reads a list of strings, or of objects carrying one of idFields.
func getStringList(rec map[string]any, keys, idFields []string) []string {
	v, ok := first(rec, keys)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if m, ok := asMap(item); ok {
			if s := getString(m, idFields); s != "" {
				out = append(out, s)
			}
			continue
		}
		if s := toString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getStringMap(rec map[string]any, keys []string) map[string]string {
	v, ok := first(rec, keys)
	if !ok {
		return nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = toString(val)
	}
	return out
}
