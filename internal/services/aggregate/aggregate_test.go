package aggregate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

func day(s string) *time.Time {
	t, err := time.Parse(models.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func dailyCost(date, sub string, amount int64) models.CostFact {
	return models.CostFact{Date: day(date), SubscriptionID: sub, Amount: decimal.NewFromInt(amount)}
}

func monthCost(month, sub string, amount int64) models.CostFact {
	return models.CostFact{Month: month, SubscriptionID: sub, Amount: decimal.NewFromInt(amount)}
}

func total(month, sub string, amount int64) models.MonthlySubscriptionTotal {
	return models.MonthlySubscriptionTotal{Month: month, SubscriptionID: sub, Total: decimal.NewFromInt(amount)}
}

var asOf = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		sel      models.Selection
		wantFrom string
		wantTo   string
		wantErr  error
	}{
		{"MTD", models.Selection{Period: models.PeriodMTD}, "2024-03-01", "2024-03-15", nil},
		{"PrevMonth", models.Selection{Period: models.PeriodPrevMonth}, "2024-02-01", "2024-02-29", nil},
		{"SixMonths", models.Selection{Period: models.Period6M}, "2023-10-01", "2024-03-15", nil},
		{"TwelveMonths", models.Selection{Period: models.Period12M}, "2023-04-01", "2024-03-15", nil},
		{"Custom", models.Selection{Period: models.PeriodCustom, From: day("2024-01-10"), To: day("2024-02-05")}, "2024-01-10", "2024-02-05", nil},
		{"CustomMissingTo", models.Selection{Period: models.PeriodCustom, From: day("2024-01-10")}, "", "", ErrInvalidSelection},
		{"CustomReversed", models.Selection{Period: models.PeriodCustom, From: day("2024-02-10"), To: day("2024-01-10")}, "", "", ErrInvalidSelection},
		{"Unknown", models.Selection{Period: "fortnight"}, "", "", ErrUnknownPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := Resolve(tt.sel, asOf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := rng.From.Format(models.DayLayout); got != tt.wantFrom {
				t.Errorf("From = %s, want %s", got, tt.wantFrom)
			}
			if got := rng.To.Format(models.DayLayout); got != tt.wantTo {
				t.Errorf("To = %s, want %s", got, tt.wantTo)
			}
		})
	}
}

func TestAggregate_MTDUsesDatedFacts(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			dailyCost("2024-03-01", "s1", 10),
			dailyCost("2024-03-01", "s2", 5),
			dailyCost("2024-03-10", "s1", 20),
			dailyCost("2024-03-16", "s1", 999),
			dailyCost("2024-02-28", "s1", 999),
			monthCost("2024-03", "s1", 999),
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-03", "s1", 999)},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodMTD, AsOf: asOf})

	if ts.Granularity != models.GranularityDay {
		t.Errorf("Granularity = %s, want day", ts.Granularity)
	}
	if len(ts.Points) != 2 {
		t.Fatalf("got %d points, want 2", len(ts.Points))
	}
	if ts.Points[0].Period != "2024-03-01" || !ts.Points[0].Amount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("first point = %+v", ts.Points[0])
	}
	if !ts.Total.Equal(decimal.NewFromInt(35)) {
		t.Errorf("Total = %s, want 35", ts.Total)
	}
	if ts.Source != models.SourceDaily {
		t.Errorf("Source = %s, want daily", ts.Source)
	}
}

func TestAggregate_HistoricalFallback(t *testing.T) {
	fs := &models.FactSet{
		MonthlyTotals: []models.MonthlySubscriptionTotal{
			total("2024-02", "s1", 300),
			total("2024-02", "s2", 200),
			total("2024-01", "s1", 1000),
		},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodPrevMonth, AsOf: asOf})

	if ts.Total.IsZero() {
		t.Fatal("historical period with monthly totals must not report zero")
	}
	if !ts.Total.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Total = %s, want 500", ts.Total)
	}
	if ts.Source != models.SourceMonthly {
		t.Errorf("Source = %s, want monthly", ts.Source)
	}
}

func TestAggregate_FallbackProperty(t *testing.T) {
	for m := 1; m <= 12; m++ {
		asOf := time.Date(2024, time.Month(m), 20, 0, 0, 0, 0, time.UTC)
		prev := time.Date(2024, time.Month(m)-1, 1, 0, 0, 0, 0, time.UTC).Format(models.MonthLayout)
		fs := &models.FactSet{MonthlyTotals: []models.MonthlySubscriptionTotal{total(prev, "s1", int64(m))}}

		for _, period := range []models.Period{models.PeriodPrevMonth, models.Period6M, models.Period12M} {
			ts := Aggregate(fs, models.Selection{Period: period, AsOf: asOf})
			if ts.Total.IsZero() {
				t.Errorf("%s as of %s reported zero despite a total for %s", period, asOf.Format(models.DayLayout), prev)
			}
		}
	}
}

func TestAggregate_MonthlyTakesPrecedenceForHistorical(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			dailyCost("2024-02-03", "s1", 7),
			dailyCost("2024-02-04", "s1", 8),
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-02", "s1", 450)},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodPrevMonth, AsOf: asOf})

	if !ts.Total.Equal(decimal.NewFromInt(450)) {
		t.Errorf("Total = %s, want 450 (no double counting)", ts.Total)
	}
}

func TestAggregate_PartialMonthUsesDatedFacts(t *testing.T) {
	var costs []models.CostFact
	for d := 1; d <= 31; d++ {
		costs = append(costs, dailyCost(time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC).Format(models.DayLayout), "s1", 100))
	}
	fs := &models.FactSet{
		Costs: costs,
		MonthlyTotals: []models.MonthlySubscriptionTotal{
			total("2024-02", "s1", 2900),
			total("2024-03", "s1", 3100),
		},
	}
	asOfApril := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from, to   string
		want       int64
		wantSource models.SeriesSource
	}{
		{"ThreeDays", "2024-03-10", "2024-03-12", 300, models.SourceDaily},
		{"WholeMonth", "2024-03-01", "2024-03-31", 3100, models.SourceMonthly},
		{"WholeAndPartial", "2024-02-01", "2024-03-02", 3100, models.SourceMixed},
		{"PartialWithoutDatedFacts", "2024-02-10", "2024-02-20", 0, models.SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := Aggregate(fs, models.Selection{Period: models.PeriodCustom, From: day(tt.from), To: day(tt.to), AsOf: asOfApril})
			if !ts.Total.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("Total = %s, want %d", ts.Total, tt.want)
			}
			if ts.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", ts.Source, tt.wantSource)
			}
		})
	}
}

func TestAggregate_InProgressMonthIgnoresTotal(t *testing.T) {
	fs := &models.FactSet{
		Costs:         []models.CostFact{dailyCost("2024-03-02", "s1", 40)},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-02", "s1", 100), total("2024-03", "s1", 999)},
	}

	ts := Aggregate(fs, models.Selection{Period: models.Period12M, AsOf: asOf})

	if !ts.Total.Equal(decimal.NewFromInt(140)) {
		t.Errorf("Total = %s, want 140", ts.Total)
	}
}

func TestCompleteMonths(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			dailyCost("2024-01-20", "s1", 5),
			dailyCost("2024-03-01", "s1", 40),
			dailyCost("2024-03-02", "s1", 60),
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-01", "s1", 900), total("2024-02", "s1", 100)},
	}

	tests := []struct {
		name        string
		sel         models.Selection
		wantPeriods []string
		wantTotal   int64
	}{
		{"DropsMonthInProgress", models.Selection{Period: models.Period6M, AsOf: asOf}, []string{"2024-01", "2024-02"}, 1000},
		{"DropsClippedFirstMonth", models.Selection{Period: models.PeriodCustom, From: day("2024-01-15"), To: day("2024-02-29"), AsOf: asOf}, []string{"2024-02"}, 100},
		{"MTD", models.Selection{Period: models.PeriodMTD, AsOf: asOf}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sel.Granularity = models.GranularityMonth
			ts := CompleteMonths(Aggregate(fs, tt.sel))
			got := ts.Labels()
			if len(got) != len(tt.wantPeriods) {
				t.Fatalf("periods = %v, want %v", got, tt.wantPeriods)
			}
			for i := range got {
				if got[i] != tt.wantPeriods[i] {
					t.Errorf("periods = %v, want %v", got, tt.wantPeriods)
				}
			}
			if !ts.Total.Equal(decimal.NewFromInt(tt.wantTotal)) {
				t.Errorf("Total = %s, want %d", ts.Total, tt.wantTotal)
			}
		})
	}
}

func TestAggregate_DailyWhenNoMonthlyTier(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			dailyCost("2024-02-03", "s1", 7),
			dailyCost("2024-02-04", "s1", 8),
		},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodPrevMonth, AsOf: asOf})

	if len(ts.Points) != 1 || ts.Points[0].Source != models.SourceDaily {
		t.Fatalf("unexpected points: %+v", ts.Points)
	}
	if !ts.Total.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Total = %s, want 15", ts.Total)
	}
}

func TestAggregate_AggregateFactsFillUncoveredSubscriptions(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			monthCost("2024-02", "s1", 999),
			monthCost("2024-02", "s3", 50),
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-02", "s1", 100)},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodPrevMonth, AsOf: asOf})

	if !ts.Total.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Total = %s, want 150", ts.Total)
	}
}

func TestAggregate_SixMonthsMixed(t *testing.T) {
	fs := &models.FactSet{
		Costs: []models.CostFact{
			dailyCost("2024-03-02", "s1", 40),
			dailyCost("2024-03-05", "s1", 60),
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{
			total("2023-11", "s1", 1000),
			total("2024-01", "s1", 1200),
			total("2023-01", "s1", 5000),
		},
	}

	ts := Aggregate(fs, models.Selection{Period: models.Period6M, AsOf: asOf})

	wantPeriods := []string{"2023-11", "2023-12", "2024-01", "2024-02", "2024-03"}
	if len(ts.Points) != len(wantPeriods) {
		t.Fatalf("got %d points, want %d: %+v", len(ts.Points), len(wantPeriods), ts.Points)
	}
	for i, p := range ts.Points {
		if p.Period != wantPeriods[i] {
			t.Errorf("Points[%d].Period = %s, want %s", i, p.Period, wantPeriods[i])
		}
	}
	if ts.Points[1].Source != models.SourceNone || !ts.Points[1].Amount.IsZero() {
		t.Errorf("interior gap should be a zero point: %+v", ts.Points[1])
	}
	if !ts.Points[4].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("current month = %s, want 100", ts.Points[4].Amount)
	}
	if !ts.Total.Equal(decimal.NewFromInt(2300)) {
		t.Errorf("Total = %s, want 2300", ts.Total)
	}
	if ts.Source != models.SourceMixed {
		t.Errorf("Source = %s, want mixed", ts.Source)
	}

	values := ts.MonthlyValues()
	if len(values) != 5 || values[0] != 1000 || values[4] != 100 {
		t.Errorf("MonthlyValues() = %v", values)
	}
}

func TestAggregate_Filters(t *testing.T) {
	fs := &models.FactSet{
		Entities: []models.Entity{
			{ID: "a", Subscriptions: []string{"s1"}},
			{ID: "b", Subscriptions: []string{"s2"}},
		},
		Costs: []models.CostFact{
			dailyCost("2024-03-02", "s1", 1),
			dailyCost("2024-03-02", "s2", 2),
			{Date: day("2024-03-02"), SubscriptionID: "s9", EntityID: "a", Amount: decimal.NewFromInt(4)},
		},
		MonthlyTotals: []models.MonthlySubscriptionTotal{
			total("2024-02", "s1", 100),
			total("2024-02", "s2", 200),
		},
	}

	tests := []struct {
		name string
		sel  models.Selection
		want int64
	}{
		{"EntityMTD", models.Selection{Period: models.PeriodMTD, EntityID: "a"}, 5},
		{"EntityHistorical", models.Selection{Period: models.PeriodPrevMonth, EntityID: "b"}, 200},
		{"Subscription", models.Selection{Period: models.PeriodMTD, SubscriptionID: "s2"}, 2},
		{"Both", models.Selection{Period: models.PeriodPrevMonth, EntityID: "a", SubscriptionID: "s2"}, 0},
		{"UnknownEntity", models.Selection{Period: models.Period12M, EntityID: "zzz"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sel.AsOf = asOf
			ts := Aggregate(fs, tt.sel)
			if !ts.Total.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("Total = %s, want %d", ts.Total, tt.want)
			}
		})
	}
}

func TestAggregate_InvalidSelection(t *testing.T) {
	fs := &models.FactSet{MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-02", "s1", 100)}}

	for _, sel := range []models.Selection{
		{Period: models.PeriodCustom, AsOf: asOf},
		{Period: models.PeriodCustom, To: day("2024-02-01"), AsOf: asOf},
		{Period: "yesterday", AsOf: asOf},
	} {
		ts := Aggregate(fs, sel)
		if !ts.Invalid || ts.Reason == "" {
			t.Errorf("selection %+v should be flagged invalid", sel)
		}
		if ts.Points == nil || len(ts.Points) != 0 || !ts.Total.IsZero() {
			t.Errorf("invalid selection should give an empty series, got %+v", ts)
		}
	}
}

func TestAggregate_EmptyFacts(t *testing.T) {
	ts := Aggregate(&models.FactSet{}, models.Selection{Period: models.Period12M, AsOf: asOf})
	if ts.Invalid || ts.Points == nil || len(ts.Points) != 0 || ts.Source != models.SourceNone {
		t.Errorf("unexpected empty result: %+v", ts)
	}

	ts = Aggregate(nil, models.Selection{Period: models.Period12M, AsOf: asOf})
	if ts.Points == nil {
		t.Error("nil fact set should still give non-nil points")
	}
}

func TestAggregate_AsOfDefaultsToSnapshotTime(t *testing.T) {
	fs := &models.FactSet{
		GeneratedAt: asOf,
		Costs:       []models.CostFact{dailyCost("2024-03-02", "s1", 3)},
	}

	ts := Aggregate(fs, models.Selection{Period: models.PeriodMTD})
	if !ts.Total.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Total = %s, want 3", ts.Total)
	}
	if !ts.Selection.AsOf.Equal(asOf) {
		t.Errorf("AsOf = %v, want snapshot time", ts.Selection.AsOf)
	}
}

func TestAggregate_ConcurrentCallers(t *testing.T) {
	fs := &models.FactSet{
		Costs:         []models.CostFact{dailyCost("2024-03-02", "s1", 3)},
		MonthlyTotals: []models.MonthlySubscriptionTotal{total("2024-02", "s1", 100)},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts := Aggregate(fs, models.Selection{Period: models.Period6M, AsOf: asOf})
			if !ts.Total.Equal(decimal.NewFromInt(103)) {
				t.Errorf("Total = %s, want 103", ts.Total)
			}
		}()
	}
	wg.Wait()
}
