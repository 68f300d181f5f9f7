// Package models defines data structures and domain types.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity is one separately billed brand/tenant.
type Entity struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Subscriptions []string `json:"subscriptions"`
}

// CostFact is a single normalized cost line.
// Daily rows carry Date; monthly-aggregate rows carry Month and a nil Date.
type CostFact struct {
	Date           *time.Time      `json:"date,omitempty"`
	Month          string          `json:"month,omitempty"`
	EntityID       string          `json:"entityId"`
	EntityName     string          `json:"entityName"`
	SubscriptionID string          `json:"subscriptionId"`
	ResourceGroup  string          `json:"resourceGroup"`
	ServiceName    string          `json:"serviceName"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// IsAggregate reports whether the monthly amount is authoritative for this fact.
func (f CostFact) IsAggregate() bool {
	return f.Date == nil
}

// PeriodMonth returns the YYYY-MM the fact belongs to, or "" if it cannot be placed.
func (f CostFact) PeriodMonth() string {
	if f.Date != nil {
		return f.Date.Format(MonthLayout)
	}
	return f.Month
}

// MonthLayout is the canonical YYYY-MM layout.
const MonthLayout = "2006-01"

// DayLayout is the canonical YYYY-MM-DD layout.
const DayLayout = "2006-01-02"

// MonthlySubscriptionTotal is an upstream per-subscription monthly total.
type MonthlySubscriptionTotal struct {
	SubscriptionID string          `json:"subscriptionId"`
	Month          string          `json:"month"`
	Total          decimal.Decimal `json:"total"`
}

// PriceSource tells where a SKU price came from.
type PriceSource string

const (
	PriceSourceInvoice  PriceSource = "invoice"
	PriceSourceEstimate PriceSource = "estimate"
	PriceSourceNone     PriceSource = ""
)

// SkuPrice is a per-seat monthly price for a SKU.
type SkuPrice struct {
	SkuID        string          `json:"skuId"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	Currency     string          `json:"currency"`
	Source       PriceSource     `json:"source"`
}

// LicenseFact is one (user, SKU) assignment.
// MonthlyCost is non-zero only when IsPaid is true.
type LicenseFact struct {
	UserID            string          `json:"userId"`
	UserPrincipalName string          `json:"userPrincipalName,omitempty"`
	DisplayName       string          `json:"displayName,omitempty"`
	EntityID          string          `json:"entityId"`
	SkuID             string          `json:"skuId"`
	SkuName           string          `json:"skuName"`
	IsPaid            bool            `json:"isPaid"`
	MonthlyCost       decimal.Decimal `json:"monthlyCost"`
	PriceSource       PriceSource     `json:"priceSource,omitempty"`
	LastSignIn        *time.Time      `json:"lastSignIn,omitempty"`
	AccountEnabled    bool            `json:"accountEnabled"`
}

// BillingSourceKind classifies a billing relationship.
type BillingSourceKind string

const (
	SourceCSP       BillingSourceKind = "csp"
	SourceDirect    BillingSourceKind = "direct"
	SourceEstimated BillingSourceKind = "estimated"
)

// InvoiceFact is one invoice line from a named billing source for an entity and month.
type InvoiceFact struct {
	EntityID          string            `json:"entityId"`
	Month             string            `json:"month"`
	BillingSourceName string            `json:"billingSourceName"`
	SourceKind        BillingSourceKind `json:"sourceKind"`
	RawAmount         decimal.Decimal   `json:"rawAmount"`
	CreditAmount      decimal.Decimal   `json:"creditAmount"`
	MarkupPct         *decimal.Decimal  `json:"markupPct,omitempty"`
	InvoiceRef        string            `json:"invoiceRef,omitempty"`
	Currency          string            `json:"currency,omitempty"`
}

// HasCredit reports whether the line carries a credit.
func (f InvoiceFact) HasCredit() bool {
	return f.CreditAmount.Sign() != 0
}

// SkuCapacity is an entity's prepaid and consumed seat count for one SKU.
type SkuCapacity struct {
	EntityID     string          `json:"entityId"`
	SkuID        string          `json:"skuId"`
	SkuName      string          `json:"skuName"`
	Prepaid      int64           `json:"prepaid"`
	Consumed     int64           `json:"consumed"`
	IsPaid       bool            `json:"isPaid"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
}

// Resource is one cloud resource from the inventory.
type Resource struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	EntityID       string            `json:"entityId"`
	SubscriptionID string            `json:"subscriptionId"`
	ResourceGroup  string            `json:"resourceGroup"`
	Type           string            `json:"type"`
	Tags           map[string]string `json:"tags,omitempty"`
	Environment    string            `json:"environment,omitempty"`
	Offer          string            `json:"offer,omitempty"`
	MonthlyCost    decimal.Decimal   `json:"monthlyCost"`
}

// FactSet is everything the normalizer produced from one raw snapshot.
// It is never patched; a new snapshot yields a new FactSet.
type FactSet struct {
	GeneratedAt   time.Time                  `json:"generatedAt"`
	Entities      []Entity                   `json:"entities"`
	Costs         []CostFact                 `json:"costs"`
	MonthlyTotals []MonthlySubscriptionTotal `json:"monthlyTotals"`
	Licenses      []LicenseFact              `json:"licenses"`
	Invoices      []InvoiceFact              `json:"invoices"`
	SkuPrices     []SkuPrice                 `json:"skuPrices"`
	SkuCapacities []SkuCapacity              `json:"skuCapacities"`
	Resources     []Resource                 `json:"resources"`
}

// SubscriptionEntities builds the subscription -> entity lookup from the
// entity directory, falling back to what cost facts report.
func (fs *FactSet) SubscriptionEntities() map[string]string {
	lookup := make(map[string]string)
	if fs == nil {
		return lookup
	}
	for _, c := range fs.Costs {
		if c.SubscriptionID != "" && c.EntityID != "" {
			lookup[c.SubscriptionID] = c.EntityID
		}
	}
	for _, e := range fs.Entities {
		for _, sub := range e.Subscriptions {
			lookup[sub] = e.ID
		}
	}
	return lookup
}

// EntityNames maps entity IDs to display names.
func (fs *FactSet) EntityNames() map[string]string {
	names := make(map[string]string)
	if fs == nil {
		return names
	}
	for _, e := range fs.Entities {
		names[e.ID] = e.Name
	}
	return names
}
