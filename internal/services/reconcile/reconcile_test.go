package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/j-veylop/spendlens/internal/models"
)

var entities = []models.Entity{
	{ID: "brand-a", Name: "Brand A", Subscriptions: []string{"s1", "s2"}},
	{ID: "brand-b", Name: "Brand B", Subscriptions: []string{"s3"}},
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func invoice(entity, month, source string, kind models.BillingSourceKind, raw, credit string) models.InvoiceFact {
	return models.InvoiceFact{
		EntityID:          entity,
		Month:             month,
		BillingSourceName: source,
		SourceKind:        kind,
		RawAmount:         dec(raw),
		CreditAmount:      dec(credit),
	}
}

func apiTotal(sub, month, amount string) models.MonthlySubscriptionTotal {
	return models.MonthlySubscriptionTotal{SubscriptionID: sub, Month: month, Total: dec(amount)}
}

func findRow(t *testing.T, rows []models.ReconciliationRow, entity, month string) models.ReconciliationRow {
	t.Helper()
	for _, r := range rows {
		if r.EntityID == entity && r.Month == month {
			return r
		}
	}
	t.Fatalf("no row for %s/%s", entity, month)
	return models.ReconciliationRow{}
}

func TestReconcile_OverInvoiced(t *testing.T) {
	rows := Reconcile(
		[]models.InvoiceFact{invoice("brand-a", "2024-03", "brand_a_csp", models.SourceCSP, "12623.73", "0")},
		[]models.MonthlySubscriptionTotal{apiTotal("s1", "2024-03", "6000"), apiTotal("s2", "2024-03", "5000")},
		entities[:1],
		DefaultOptions(),
	)

	row := findRow(t, rows, "brand-a", "2024-03")
	if row.Status != models.StatusOver {
		t.Errorf("Status = %s, want over", row.Status)
	}
	if row.VariancePct == nil || math.Abs(*row.VariancePct-14.76) > 0.01 {
		t.Errorf("VariancePct = %v, want ~14.76", row.VariancePct)
	}
	if !row.VarianceAbs.Equal(dec("1623.73")) {
		t.Errorf("VarianceAbs = %s, want 1623.73", row.VarianceAbs)
	}
	if row.EntityName != "Brand A" {
		t.Errorf("EntityName = %q", row.EntityName)
	}
}

func TestReconcile_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		invoiced string
		want     models.ReconciliationStatus
	}{
		{"110", models.StatusMatched},
		{"90", models.StatusMatched},
		{"100", models.StatusMatched},
		{"110.01", models.StatusOver},
		{"89.99", models.StatusUnder},
	}

	for _, tt := range tests {
		t.Run(tt.invoiced, func(t *testing.T) {
			rows := Reconcile(
				[]models.InvoiceFact{invoice("brand-b", "2024-01", "direct", models.SourceDirect, tt.invoiced, "0")},
				[]models.MonthlySubscriptionTotal{apiTotal("s3", "2024-01", "100")},
				entities[1:],
				DefaultOptions(),
			)
			if got := findRow(t, rows, "brand-b", "2024-01").Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReconcile_MatchedIffWithinThreshold(t *testing.T) {
	api := dec("250")
	limit := api.Mul(dec("0.10"))

	var invoices []models.InvoiceFact
	for cents := int64(20000); cents <= 30000; cents += 37 {
		amount := decimal.New(cents, -2)
		invoices = invoices[:0]
		invoices = append(invoices, invoice("brand-b", "2024-01", "direct", models.SourceDirect, amount.String(), "0"))

		rows := Reconcile(invoices, []models.MonthlySubscriptionTotal{apiTotal("s3", "2024-01", "250")}, entities[1:], DefaultOptions())
		row := rows[0]

		within := amount.Sub(api).Abs().LessThanOrEqual(limit)
		if (row.Status == models.StatusMatched) != within {
			t.Fatalf("invoiced %s: status %s, within threshold %v", amount, row.Status, within)
		}
	}
}

func TestReconcile_AsymmetricThresholds(t *testing.T) {
	opts := DefaultOptions()
	opts.OverThreshold = 0.05
	opts.UnderThreshold = 0.20

	tests := []struct {
		invoiced string
		want     models.ReconciliationStatus
	}{
		{"106", models.StatusOver},
		{"85", models.StatusMatched},
		{"79", models.StatusUnder},
	}
	for _, tt := range tests {
		rows := Reconcile(
			[]models.InvoiceFact{invoice("brand-b", "2024-01", "direct", models.SourceDirect, tt.invoiced, "0")},
			[]models.MonthlySubscriptionTotal{apiTotal("s3", "2024-01", "100")},
			entities[1:],
			opts,
		)
		if rows[0].Status != tt.want {
			t.Errorf("invoiced %s: Status = %s, want %s", tt.invoiced, rows[0].Status, tt.want)
		}
	}
}

func TestReconcile_CreditsAndMarkup(t *testing.T) {
	markup := dec("5")
	csp := invoice("brand-a", "2024-02", "brand_a_csp", models.SourceCSP, "1000", "50")
	csp.MarkupPct = &markup
	direct := invoice("brand-a", "2024-02", "brand_a_direct", models.SourceDirect, "200", "20")

	tests := []struct {
		name          string
		policy        CreditPolicy
		wantInvoiced  string
		wantApplied   string
		wantUnapplied string
	}{
		{"CSPOnly", CreditPolicyCSPOnly, "1200", "50", "20"},
		{"All", CreditPolicyAll, "1180", "70", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.CreditPolicy = tt.policy
			rows := Reconcile([]models.InvoiceFact{direct, csp}, []models.MonthlySubscriptionTotal{apiTotal("s1", "2024-02", "1200")}, entities[:1], opts)
			row := findRow(t, rows, "brand-a", "2024-02")

			if !row.InvoicedTotal.Equal(dec(tt.wantInvoiced)) {
				t.Errorf("InvoicedTotal = %s, want %s", row.InvoicedTotal, tt.wantInvoiced)
			}
			if !row.HasCredit || !row.CreditTotal.Equal(dec(tt.wantApplied)) || !row.UnappliedCredit.Equal(dec(tt.wantUnapplied)) {
				t.Errorf("credit summary = %v/%s/%s, want true/%s/%s",
					row.HasCredit, row.CreditTotal, row.UnappliedCredit, tt.wantApplied, tt.wantUnapplied)
			}
			applied := decimal.Zero
			for _, src := range row.Sources {
				applied = applied.Add(src.Credit)
			}
			if !row.CreditTotal.Equal(applied) {
				t.Errorf("CreditTotal = %s, want sum of source credits %s", row.CreditTotal, applied)
			}
			if len(row.Sources) != 2 || row.Sources[0].Name != "brand_a_csp" {
				t.Fatalf("Sources = %+v", row.Sources)
			}
			if !row.Sources[0].Gross.Equal(dec("1050")) || !row.Sources[0].Net.Equal(dec("1000")) {
				t.Errorf("CSP leg = %+v, want gross 1050 net 1000", row.Sources[0])
			}
			if row.Status != models.StatusMatched {
				t.Errorf("Status = %s, want matched", row.Status)
			}
		})
	}
}

func TestReconcile_OneSidedMonths(t *testing.T) {
	rows := Reconcile(
		[]models.InvoiceFact{
			invoice("brand-a", "2024-01", "csp", models.SourceCSP, "0", "75"),
			invoice("brand-a", "2024-02", "direct", models.SourceDirect, "500", "0"),
		},
		[]models.MonthlySubscriptionTotal{apiTotal("s1", "2024-04", "300")},
		entities,
		DefaultOptions(),
	)

	if len(rows) != 8 {
		t.Fatalf("got %d rows, want 2 entities x 4 months", len(rows))
	}

	tests := []struct {
		entity, month string
		want          models.ReconciliationStatus
		pctDefined    bool
	}{
		{"brand-a", "2024-01", models.StatusCredit, false},
		{"brand-a", "2024-02", models.StatusOver, false},
		{"brand-a", "2024-03", models.StatusUnknown, false},
		{"brand-a", "2024-04", models.StatusUnder, true},
		{"brand-b", "2024-02", models.StatusUnknown, false},
	}
	for _, tt := range tests {
		row := findRow(t, rows, tt.entity, tt.month)
		if row.Status != tt.want {
			t.Errorf("%s/%s Status = %s, want %s", tt.entity, tt.month, row.Status, tt.want)
		}
		if (row.VariancePct != nil) != tt.pctDefined {
			t.Errorf("%s/%s VariancePct defined = %v, want %v", tt.entity, tt.month, row.VariancePct != nil, tt.pctDefined)
		}
		if row.Sources == nil {
			t.Errorf("%s/%s Sources should be non-nil", tt.entity, tt.month)
		}
	}
}

func TestReconcile_CreditWithAPITotal(t *testing.T) {
	rows := Reconcile(
		[]models.InvoiceFact{invoice("brand-a", "2024-01", "csp", models.SourceCSP, "1050", "50")},
		[]models.MonthlySubscriptionTotal{apiTotal("s1", "2024-01", "1000")},
		entities[:1],
		DefaultOptions(),
	)
	if rows[0].Status != models.StatusMatched {
		t.Errorf("credit with both sides present should be classified by variance, got %s", rows[0].Status)
	}
}

func TestReconcile_ExplicitWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.Months = Window(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), 3)

	rows := Reconcile(
		[]models.InvoiceFact{invoice("brand-a", "2023-06", "csp", models.SourceCSP, "10", "0")},
		nil,
		entities[:1],
		opts,
	)

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Month != "2024-01" || rows[2].Month != "2024-03" {
		t.Errorf("window = %s..%s, want 2024-01..2024-03", rows[0].Month, rows[2].Month)
	}
}

func TestReconcile_Empty(t *testing.T) {
	rows := Reconcile(nil, nil, nil, Options{})
	if rows == nil || len(rows) != 0 {
		t.Errorf("Reconcile() on empty input = %v, want empty slice", rows)
	}
}

func TestReconcile_StableIDs(t *testing.T) {
	in := []models.InvoiceFact{invoice("brand-a", "2024-01", "csp", models.SourceCSP, "10", "0")}
	a := Reconcile(in, nil, entities[:1], DefaultOptions())
	b := Reconcile(in, nil, entities[:1], DefaultOptions())
	if a[0].ID == "" || a[0].ID != b[0].ID {
		t.Errorf("row IDs should be stable, got %q and %q", a[0].ID, b[0].ID)
	}
}

func TestReconcile_SubscriptionLookupOverride(t *testing.T) {
	opts := DefaultOptions()
	opts.SubscriptionEntities = map[string]string{"s-new": "brand-b"}

	rows := Reconcile(nil, []models.MonthlySubscriptionTotal{apiTotal("s-new", "2024-01", "42")}, entities, opts)
	row := findRow(t, rows, "brand-b", "2024-01")
	if !row.APIReportedTotal.Equal(dec("42")) {
		t.Errorf("APIReportedTotal = %s, want 42", row.APIReportedTotal)
	}
}
