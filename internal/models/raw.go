// Package models defines data structures and domain types.
package models

import "time"

// RawRecord is one upstream row in whatever shape the collector produced.
// Field names vary across data vintages; the normalizer resolves them.
type RawRecord map[string]any

// RawLicenseSet holds an entity's SKU subscriptions and per-user assignments.
type RawLicenseSet struct {
	Skus        []RawRecord `json:"skus"`
	Assignments []RawRecord `json:"assignments,omitempty"`
}

// RawSnapshot is one immutable capture from the upstream collector.
type RawSnapshot struct {
	GeneratedAt   time.Time                `json:"generatedAt"`
	Entities      []RawRecord              `json:"entities"`
	CostRecords   []RawRecord              `json:"costRecords"`
	MonthlyTotals []RawRecord              `json:"monthlyTotals"`
	Licenses      map[string]RawLicenseSet `json:"licenses"`
	Users         map[string][]RawRecord   `json:"users"`
	Invoices      map[string][]RawRecord   `json:"invoices"`
	SkuPrices     []RawRecord              `json:"skuPrices"`
	Resources     []RawRecord              `json:"resources"`
}
