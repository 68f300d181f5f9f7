package normalize

import (
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/config"
	"github.com/j-veylop/spendlens/internal/models"
)

// Classifier decides whether a SKU is paid from the catalog lists.
// Price never enters the decision.
type Classifier struct {
	free     map[string]struct{}
	paid     map[string]struct{}
	patterns []string
}

// NewClassifier builds a classifier from catalog lists.
func NewClassifier(cat *config.Catalog) *Classifier {
	c := &Classifier{
		free: make(map[string]struct{}),
		paid: make(map[string]struct{}),
	}
	for _, s := range cat.FreeSkus {
		c.free[strings.ToUpper(s)] = struct{}{}
	}
	for _, s := range cat.PaidSkus {
		c.paid[strings.ToUpper(s)] = struct{}{}
	}
	c.patterns = lo.Map(cat.FreePatterns, func(p string, _ int) string {
		return strings.ToUpper(p)
	})
	return c
}

// IsPaid reports whether the SKU part number denotes a paid license.
// The paid allow list overrides both the free set and the free patterns.
func (c *Classifier) IsPaid(skuName string) bool {
	name := strings.ToUpper(strings.TrimSpace(skuName))
	if name == "" {
		return false
	}
	if _, ok := c.paid[name]; ok {
		return true
	}
	if _, ok := c.free[name]; ok {
		return false
	}
	for _, p := range c.patterns {
		if matchPattern(name, p) {
			return false
		}
	}
	return true
}

// matchPattern matches a free pattern against an upper-cased SKU name.
// Patterns starting with an underscore are suffix tokens: "_DEV" matches
// "PROJECT_DEV" and "PROJECT_DEV_P1" but not "MCOPSTN_DEVICE". Other
// patterns match anywhere in the name.
func matchPattern(name, p string) bool {
	if p == "" {
		return false
	}
	if !strings.HasPrefix(p, "_") {
		return strings.Contains(name, p)
	}
	return strings.HasSuffix(name, p) || strings.Contains(name, p+"_")
}

// PriceBook resolves per-seat SKU prices. Invoice prices beat estimates.
type PriceBook struct {
	prices map[string]models.SkuPrice
}

// NewPriceBook merges catalog estimates with snapshot price rows.
func NewPriceBook(cat *config.Catalog, rows []models.RawRecord) *PriceBook {
	pb := &PriceBook{prices: make(map[string]models.SkuPrice)}

	for _, p := range cat.SkuPrices {
		pb.add(models.SkuPrice{
			SkuID:        p.Sku,
			MonthlyPrice: decimal.NewFromFloat(p.MonthlyPrice),
			Currency:     lo.Ternary(p.Currency == "", "USD", p.Currency),
			Source:       models.PriceSourceEstimate,
		})
	}

	for _, row := range rows {
		sku := getString(row, append(append([]string{}, skuNameKeys...), skuIDKeys...))
		price, ok := getDecimal(row, priceKeys)
		if sku == "" || !ok {
			continue
		}
		source := models.PriceSourceInvoice
		if strings.EqualFold(getString(row, priceSourceKeys), string(models.PriceSourceEstimate)) {
			source = models.PriceSourceEstimate
		}
		currency := getString(row, currencyKeys)
		pb.add(models.SkuPrice{
			SkuID:        sku,
			MonthlyPrice: price,
			Currency:     lo.Ternary(currency == "", "USD", currency),
			Source:       source,
		})
	}

	return pb
}

func (pb *PriceBook) add(p models.SkuPrice) {
	key := strings.ToUpper(p.SkuID)
	if cur, ok := pb.prices[key]; ok {
		if cur.Source == models.PriceSourceInvoice && p.Source != models.PriceSourceInvoice {
			return
		}
	}
	pb.prices[key] = p
}

// Lookup returns the resolved price for a SKU part number or ID.
func (pb *PriceBook) Lookup(keys ...string) (models.SkuPrice, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if p, ok := pb.prices[strings.ToUpper(k)]; ok {
			return p, true
		}
	}
	return models.SkuPrice{}, false
}

// Prices returns every resolved price ordered by SKU.
func (pb *PriceBook) Prices() []models.SkuPrice {
	keys := lo.Keys(pb.prices)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) models.SkuPrice {
		return pb.prices[k]
	})
}
