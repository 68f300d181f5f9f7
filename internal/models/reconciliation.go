// Package models defines data structures and domain types.
package models

import "github.com/shopspring/decimal"

// ReconciliationStatus classifies invoiced vs API-reported spend.
type ReconciliationStatus string

const (
	StatusMatched ReconciliationStatus = "matched"
	StatusOver    ReconciliationStatus = "over"
	StatusUnder   ReconciliationStatus = "under"
	StatusCredit  ReconciliationStatus = "credit"
	StatusUnknown ReconciliationStatus = "unknown"
)

// SourceAmount is one billing source's contribution to a ledger row.
type SourceAmount struct {
	Name   string            `json:"name"`
	Kind   BillingSourceKind `json:"kind"`
	Gross  decimal.Decimal   `json:"gross"`
	Credit decimal.Decimal   `json:"credit"`
	Net    decimal.Decimal   `json:"net"`
}

// ReconciliationRow is one (entity, month) ledger line. It is derived on
// every query and never stored.
//
// CreditTotal is the credit subtracted from InvoicedTotal, the sum of
// Sources[].Credit. UnappliedCredit is credit on lines the credit policy
// leaves untouched. HasCredit is set when any line carries a credit.
type ReconciliationRow struct {
	ID               string               `json:"id"`
	Month            string               `json:"month"`
	EntityID         string               `json:"entityId"`
	EntityName       string               `json:"entityName,omitempty"`
	InvoicedTotal    decimal.Decimal      `json:"invoicedTotal"`
	APIReportedTotal decimal.Decimal      `json:"apiReportedTotal"`
	VarianceAbs      decimal.Decimal      `json:"varianceAbs"`
	VariancePct      *float64             `json:"variancePct,omitempty"`
	Status           ReconciliationStatus `json:"status"`
	CreditTotal      decimal.Decimal      `json:"creditTotal"`
	UnappliedCredit  decimal.Decimal      `json:"unappliedCredit"`
	HasCredit        bool                 `json:"hasCredit"`
	Sources          []SourceAmount       `json:"sources"`
}
