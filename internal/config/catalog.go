package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds business lookup tables that change without code changes:
// SKU classification lists, estimated prices, and billing source bindings.
// FreePatterns match anywhere in a SKU name, except patterns with a leading
// underscore, which match only as a whole trailing token.
type Catalog struct {
	FreeSkus       []string                 `yaml:"free_skus"`
	PaidSkus       []string                 `yaml:"paid_skus"`
	FreePatterns   []string                 `yaml:"free_patterns"`
	SkuPrices      []CatalogPrice           `yaml:"sku_prices"`
	BillingSources map[string]BillingSource `yaml:"billing_sources"`
	DevTestMarkers []string                 `yaml:"devtest_markers"`
	DevTestOffers  []string                 `yaml:"devtest_offers"`
	RequiredTags   []string                 `yaml:"required_tags"`
}

// CatalogPrice is an estimated per-seat monthly SKU price.
type CatalogPrice struct {
	Sku          string  `yaml:"sku"`
	MonthlyPrice float64 `yaml:"monthly_price"`
	Currency     string  `yaml:"currency"`
}

// BillingSource binds a named invoice table to an entity and a billing kind.
// An empty Entity means rows carry their own entity column.
type BillingSource struct {
	Entity string `yaml:"entity"`
	Kind   string `yaml:"kind"`
}

// DefaultCatalog returns the built-in catalog used when no file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		FreeSkus: []string{
			"FLOW_FREE",
			"POWER_BI_STANDARD",
			"WINDOWS_STORE",
			"MICROSOFT_BUSINESS_CENTER",
			"TEAMS_EXPLORATORY",
			"STREAM",
		},
		FreePatterns: []string{"FREE", "TRIAL", "VIRAL", "DEVELOPER", "_DEV"},
		SkuPrices: []CatalogPrice{
			{Sku: "SPE_E3", MonthlyPrice: 36.00, Currency: "USD"},
			{Sku: "SPE_E5", MonthlyPrice: 57.00, Currency: "USD"},
			{Sku: "ENTERPRISEPACK", MonthlyPrice: 23.00, Currency: "USD"},
			{Sku: "O365_BUSINESS_PREMIUM", MonthlyPrice: 22.00, Currency: "USD"},
			{Sku: "O365_BUSINESS_ESSENTIALS", MonthlyPrice: 6.00, Currency: "USD"},
			{Sku: "EMS", MonthlyPrice: 10.60, Currency: "USD"},
			{Sku: "POWER_BI_PRO", MonthlyPrice: 10.00, Currency: "USD"},
			{Sku: "VISIOCLIENT", MonthlyPrice: 15.00, Currency: "USD"},
			{Sku: "PROJECTPROFESSIONAL", MonthlyPrice: 30.00, Currency: "USD"},
		},
		BillingSources: map[string]BillingSource{},
		DevTestMarkers: []string{"dev", "test", "qa", "sandbox", "staging"},
		DevTestOffers:  []string{"MS-AZR-0148P", "MS-AZR-0060P", "DevTest"},
		RequiredTags:   []string{"cost-center", "owner"},
	}
}

// LoadCatalog reads a YAML catalog. An empty path returns the default catalog.
// Sections missing from the file keep their defaults.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog content over the defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	cat := DefaultCatalog()
	if err := yaml.Unmarshal(data, cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for name, src := range cat.BillingSources {
		switch strings.ToLower(src.Kind) {
		case "csp", "direct", "estimated":
			src.Kind = strings.ToLower(src.Kind)
			cat.BillingSources[name] = src
		case "":
			src.Kind = "direct"
			cat.BillingSources[name] = src
		default:
			return nil, fmt.Errorf("billing source %q has unknown kind %q", name, src.Kind)
		}
	}
	for _, p := range cat.SkuPrices {
		if p.Sku == "" {
			return nil, fmt.Errorf("catalog price entry without sku")
		}
		if p.MonthlyPrice < 0 {
			return nil, fmt.Errorf("catalog price for %s is negative", p.Sku)
		}
	}

	return cat, nil
}
