// Package models defines data structures and domain types.
package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// WasteSeverity is an inactivity tier.
type WasteSeverity string

const (
	SeverityCritical WasteSeverity = "critical"
	SeverityHigh     WasteSeverity = "high"
	SeverityMedium   WasteSeverity = "medium"
)

// WasteFinding is a paid assignment held by an inactive, enabled account.
type WasteFinding struct {
	UserID            string          `json:"userId"`
	UserPrincipalName string          `json:"userPrincipalName,omitempty"`
	DisplayName       string          `json:"displayName,omitempty"`
	EntityID          string          `json:"entityId"`
	SkuID             string          `json:"skuId"`
	SkuName           string          `json:"skuName"`
	MonthlyCost       decimal.Decimal `json:"monthlyCost"`
	LastSignIn        *time.Time      `json:"lastSignIn,omitempty"`
	DaysInactive      int             `json:"daysInactive"`
	NeverSignedIn     bool            `json:"neverSignedIn"`
	Severity          WasteSeverity   `json:"severity"`
}

// Inactivity returns days inactive, +Inf when there is no sign-in on record.
func (f WasteFinding) Inactivity() float64 {
	if f.NeverSignedIn {
		return math.Inf(1)
	}
	return float64(f.DaysInactive)
}

// UnderutilizedSku is a paid SKU whose prepaid seats are mostly unused.
type UnderutilizedSku struct {
	EntityID                string          `json:"entityId"`
	SkuID                   string          `json:"skuId"`
	SkuName                 string          `json:"skuName"`
	Prepaid                 int64           `json:"prepaid"`
	Consumed                int64           `json:"consumed"`
	Utilization             float64         `json:"utilization"`
	MonthlyPrice            decimal.Decimal `json:"monthlyPrice"`
	EstimatedMonthlySavings decimal.Decimal `json:"estimatedMonthlySavings"`
}

// RedundantAssignment is a user holding more than one paid SKU.
type RedundantAssignment struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName,omitempty"`
	EntityID    string          `json:"entityId"`
	SkuIDs      []string        `json:"skuIds"`
	SkuNames    []string        `json:"skuNames"`
	MonthlyCost decimal.Decimal `json:"monthlyCost"`
	// Savings assumes every SKU but the most expensive one can go.
	PotentialSavings decimal.Decimal `json:"potentialSavings"`
}

// WasteTotals summarizes a WasteReport.
type WasteTotals struct {
	CriticalCount          int             `json:"criticalCount"`
	HighCount              int             `json:"highCount"`
	MediumCount            int             `json:"mediumCount"`
	CriticalCost           decimal.Decimal `json:"criticalCost"`
	HighCost               decimal.Decimal `json:"highCost"`
	MediumCost             decimal.Decimal `json:"mediumCost"`
	RecoverableMonthlyCost decimal.Decimal `json:"recoverableMonthlyCost"`
	UnderutilizedSavings   decimal.Decimal `json:"underutilizedSavings"`
	RedundantSavings       decimal.Decimal `json:"redundantSavings"`
	PaidAssignments        int             `json:"paidAssignments"`
	ExcludedFree           int             `json:"excludedFree"`
	ExcludedDisabled       int             `json:"excludedDisabled"`
}

// WasteReport is the output of license waste analysis.
type WasteReport struct {
	Critical      []WasteFinding        `json:"critical"`
	High          []WasteFinding        `json:"high"`
	Medium        []WasteFinding        `json:"medium"`
	Underutilized []UnderutilizedSku    `json:"underutilized"`
	Redundant     []RedundantAssignment `json:"redundant"`
	Totals        WasteTotals           `json:"totals"`
}
