// Package models defines data structures and domain types.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period names a cost selection window.
type Period string

const (
	PeriodMTD       Period = "mtd"
	PeriodPrevMonth Period = "prev-month"
	Period6M        Period = "6m"
	Period12M       Period = "12m"
	PeriodCustom    Period = "custom"
)

// IsHistorical reports whether monthly totals may stand in for missing daily data.
func (p Period) IsHistorical() bool {
	return p != PeriodMTD
}

// Granularity controls how dated facts are bucketed.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// Selection is a time/tenant/subscription filter over cost facts.
type Selection struct {
	Period         Period      `json:"period"`
	From           *time.Time  `json:"from,omitempty"`
	To             *time.Time  `json:"to,omitempty"`
	EntityID       string      `json:"entityId,omitempty"`
	SubscriptionID string      `json:"subscriptionId,omitempty"`
	Granularity    Granularity `json:"granularity,omitempty"`
	AsOf           time.Time   `json:"asOf"`
}

// DateRange is an inclusive [From, To] day range.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Months lists every YYYY-MM touched by the range.
func (r DateRange) Months() []string {
	var months []string
	if r.To.Before(r.From) {
		return months
	}
	cur := time.Date(r.From.Year(), r.From.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(r.To.Year(), r.To.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		months = append(months, cur.Format(MonthLayout))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	day := t.Format(DayLayout)
	return day >= r.From.Format(DayLayout) && day <= r.To.Format(DayLayout)
}

// SeriesSource tells which granularity produced a series point.
type SeriesSource string

const (
	SourceDaily   SeriesSource = "daily"
	SourceMonthly SeriesSource = "monthly"
	SourceMixed   SeriesSource = "mixed"
	SourceNone    SeriesSource = "none"
)

// SeriesPoint is one bucket of a time series.
type SeriesPoint struct {
	Period string          `json:"period"`
	Start  time.Time       `json:"start"`
	Amount decimal.Decimal `json:"amount"`
	Source SeriesSource    `json:"source"`
}

// TimeSeries is the result of applying a Selection to a FactSet.
type TimeSeries struct {
	Selection   Selection       `json:"selection"`
	Range       DateRange       `json:"range"`
	Granularity Granularity     `json:"granularity"`
	Points      []SeriesPoint   `json:"points"`
	Total       decimal.Decimal `json:"total"`
	Source      SeriesSource    `json:"source"`
	Invalid     bool            `json:"invalid,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// MonthlyValues rolls points up to one value per month, oldest first.
func (ts TimeSeries) MonthlyValues() []float64 {
	var (
		values []float64
		last   string
	)
	for _, p := range ts.Points {
		month := p.Start.Format(MonthLayout)
		if month != last || len(values) == 0 {
			values = append(values, 0)
			last = month
		}
		values[len(values)-1] += p.Amount.InexactFloat64()
	}
	return values
}

// Labels returns the period label of every point.
func (ts TimeSeries) Labels() []string {
	labels := make([]string, len(ts.Points))
	for i, p := range ts.Points {
		labels[i] = p.Period
	}
	return labels
}
