// Package aggregate applies a time, entity, and subscription selection to
// cost facts and folds daily and monthly granularities into one series.
package aggregate

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

// Aggregate builds a TimeSeries for the selection. It never fails: an
// unusable selection yields an empty series flagged Invalid.
//
// Per month, mtd selections use dated facts only. Historical selections use
// the monthly tier (upstream subscription totals, plus month-bearing cost
// facts for subscriptions the totals lack) for months the range covers in
// full, when it has rows for that month. Every other month sums the dated
// facts inside the range.
func Aggregate(fs *models.FactSet, sel models.Selection) models.TimeSeries {
	asOf := sel.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
		if fs != nil && !fs.GeneratedAt.IsZero() {
			asOf = fs.GeneratedAt
		}
	}
	sel.AsOf = asOf

	gran := sel.Granularity
	if gran == "" {
		gran = lo.Ternary(sel.Period == models.PeriodMTD, models.GranularityDay, models.GranularityMonth)
	}

	ts := models.TimeSeries{
		Selection:   sel,
		Granularity: gran,
		Points:      make([]models.SeriesPoint, 0),
		Total:       decimal.Zero,
		Source:      models.SourceNone,
	}

	rng, err := Resolve(sel, asOf)
	if err != nil {
		ts.Invalid = true
		ts.Reason = err.Error()
		return ts
	}
	ts.Range = rng
	if fs == nil {
		return ts
	}

	f := newFilter(fs, sel)

	daily := make(map[string][]models.CostFact)
	aggregates := make(map[string][]models.CostFact)
	for _, c := range fs.Costs {
		if !f.match(c.SubscriptionID, c.EntityID) {
			continue
		}
		if c.IsAggregate() {
			if c.Month != "" {
				aggregates[c.Month] = append(aggregates[c.Month], c)
			}
			continue
		}
		if rng.Contains(*c.Date) {
			month := c.Date.Format(models.MonthLayout)
			daily[month] = append(daily[month], c)
		}
	}

	totals := make(map[string][]models.MonthlySubscriptionTotal)
	for _, t := range fs.MonthlyTotals {
		if f.match(t.SubscriptionID, "") {
			totals[t.Month] = append(totals[t.Month], t)
		}
	}

	var points []models.SeriesPoint
	for _, month := range rng.Months() {
		start, _ := time.Parse(models.MonthLayout, month)

		if sel.Period.IsHistorical() && coversMonth(rng, start) {
			if amount, ok := monthlyTier(totals[month], aggregates[month]); ok {
				points = append(points, models.SeriesPoint{
					Period: month,
					Start:  start,
					Amount: amount,
					Source: models.SourceMonthly,
				})
				continue
			}
		}

		facts := daily[month]
		if len(facts) == 0 {
			points = append(points, models.SeriesPoint{
				Period: month,
				Start:  start,
				Amount: decimal.Zero,
				Source: models.SourceNone,
			})
			continue
		}
		if gran == models.GranularityDay {
			points = append(points, dailyPoints(facts)...)
			continue
		}
		points = append(points, models.SeriesPoint{
			Period: month,
			Start:  start,
			Amount: sumCosts(facts),
			Source: models.SourceDaily,
		})
	}

	points = trimEmpty(points)
	ts.Points = append(ts.Points, points...)
	ts.Total = lo.Reduce(points, func(acc decimal.Decimal, p models.SeriesPoint, _ int) decimal.Decimal {
		return acc.Add(p.Amount)
	}, decimal.Zero)
	ts.Source = seriesSource(points)

	return ts
}

// CompleteMonths narrows a series to the calendar months its range covers
// in full, dropping a leading or trailing month that the range only clips,
// such as the month still in progress.
func CompleteMonths(ts models.TimeSeries) models.TimeSeries {
	if ts.Invalid || len(ts.Points) == 0 {
		return ts
	}
	points := lo.Filter(ts.Points, func(p models.SeriesPoint, _ int) bool {
		start := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
		return coversMonth(ts.Range, start)
	})
	ts.Points = points
	ts.Total = lo.Reduce(points, func(acc decimal.Decimal, p models.SeriesPoint, _ int) decimal.Decimal {
		return acc.Add(p.Amount)
	}, decimal.Zero)
	ts.Source = seriesSource(points)
	return ts
}

// coversMonth reports whether the range spans the whole calendar month
// starting at start.
func coversMonth(rng models.DateRange, start time.Time) bool {
	end := start.AddDate(0, 1, -1)
	return !start.Before(startOfDay(rng.From)) && !end.After(startOfDay(rng.To))
}

// filter applies entity and subscription constraints through one
// subscription to entity lookup built per query.
type filter struct {
	entityID       string
	subscriptionID string
	subEntity      map[string]string
}

func newFilter(fs *models.FactSet, sel models.Selection) filter {
	f := filter{entityID: sel.EntityID, subscriptionID: sel.SubscriptionID}
	if f.entityID != "" {
		f.subEntity = fs.SubscriptionEntities()
	}
	return f
}

func (f filter) match(subscriptionID, entityID string) bool {
	if f.subscriptionID != "" && !strings.EqualFold(f.subscriptionID, subscriptionID) {
		return false
	}
	if f.entityID == "" {
		return true
	}
	if e, ok := f.subEntity[subscriptionID]; ok {
		return e == f.entityID
	}
	return entityID == f.entityID
}

// monthlyTier sums upstream totals for a month, adding month-bearing cost
// facts only for subscriptions the totals do not cover.
func monthlyTier(totals []models.MonthlySubscriptionTotal, aggregates []models.CostFact) (decimal.Decimal, bool) {
	if len(totals) == 0 && len(aggregates) == 0 {
		return decimal.Zero, false
	}

	covered := make(map[string]struct{}, len(totals))
	sum := decimal.Zero
	for _, t := range totals {
		covered[t.SubscriptionID] = struct{}{}
		sum = sum.Add(t.Total)
	}
	for _, c := range aggregates {
		if _, ok := covered[c.SubscriptionID]; ok {
			continue
		}
		sum = sum.Add(c.Amount)
	}
	return sum, true
}

func dailyPoints(facts []models.CostFact) []models.SeriesPoint {
	byDay := lo.GroupBy(facts, func(c models.CostFact) string {
		return c.Date.Format(models.DayLayout)
	})
	days := lo.Keys(byDay)
	slices.Sort(days)

	return lo.Map(days, func(day string, _ int) models.SeriesPoint {
		start, _ := time.Parse(models.DayLayout, day)
		return models.SeriesPoint{
			Period: day,
			Start:  start,
			Amount: sumCosts(byDay[day]),
			Source: models.SourceDaily,
		}
	})
}

func sumCosts(facts []models.CostFact) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range facts {
		sum = sum.Add(c.Amount)
	}
	return sum
}

// trimEmpty drops leading and trailing months with no data. Interior gaps
// stay as zero points so the series keeps its calendar shape.
func trimEmpty(points []models.SeriesPoint) []models.SeriesPoint {
	start := slices.IndexFunc(points, func(p models.SeriesPoint) bool {
		return p.Source != models.SourceNone
	})
	if start < 0 {
		return nil
	}
	end := len(points)
	for end > start && points[end-1].Source == models.SourceNone {
		end--
	}
	return points[start:end]
}

func seriesSource(points []models.SeriesPoint) models.SeriesSource {
	var daily, monthly bool
	for _, p := range points {
		switch p.Source {
		case models.SourceDaily:
			daily = true
		case models.SourceMonthly:
			monthly = true
		}
	}
	switch {
	case daily && monthly:
		return models.SourceMixed
	case daily:
		return models.SourceDaily
	case monthly:
		return models.SourceMonthly
	}
	return models.SourceNone
}
