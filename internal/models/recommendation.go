// Package models defines data structures and domain types.
package models

import "github.com/shopspring/decimal"

// Priority orders recommendations; lower rank sorts first.
type Priority string

const (
	PriorityCritical  Priority = "critical"
	PriorityHighValue Priority = "high-value"
	PriorityQuickWin  Priority = "quick-win"
)

// Rank returns the sort rank of the priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHighValue:
		return 1
	case PriorityQuickWin:
		return 2
	default:
		return 3
	}
}

// Effort is the expected implementation effort.
type Effort string

const (
	EffortLow    Effort = "Low"
	EffortMedium Effort = "Medium"
	EffortHigh   Effort = "High"
)

// Recommendation is one prioritized, cost-quantified action item.
type Recommendation struct {
	ID                      string          `json:"id"`
	Rule                    string          `json:"rule"`
	Priority                Priority        `json:"priority"`
	Category                string          `json:"category"`
	Title                   string          `json:"title"`
	EstimatedMonthlySavings decimal.Decimal `json:"estimatedMonthlySavings"`
	Effort                  Effort          `json:"effort"`
	EvidenceRefs            []string        `json:"evidenceRefs"`
}
