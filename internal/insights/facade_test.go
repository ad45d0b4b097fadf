package insights

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"lifescore/internal/aggregate"
	"lifescore/internal/core"
	"lifescore/internal/correlation"
	"lifescore/internal/sources"
)

func tx(id, merchant, category, amount string, date core.Date) core.Transaction {
	return core.Transaction{
		ID:        id,
		AccountID: "chk",
		Merchant:  merchant,
		Category:  core.Category{Name: category},
		Amount:    decimal.RequireFromString(amount),
		Date:      date,
		Status:    core.StatusCompleted,
	}
}

func fixture() Request {
	return Request{
		Transactions: []core.Transaction{
			tx("old", "Shell", "Gas", "-100", core.NewDate(2024, 12, 20)),
			tx("pay", "Acme Payroll", "Income", "3000", core.NewDate(2025, 1, 1)),
			tx("wf", "Whole Foods", "Groceries", "-45", core.NewDate(2025, 1, 10)),
			tx("gas", "Shell", "Gas", "-60", core.NewDate(2025, 2, 5)),
		},
		Accounts: []core.Account{
			{ID: "chk", Balance: decimal.NewFromInt(4000)},
			{ID: "sav", Balance: decimal.NewFromInt(1000)},
		},
		Window: Window{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 2, 28)},
		Policy: aggregate.Monthly,
		Auxiliary: []Auxiliary{{
			Name:    sources.MetricMindfulness,
			Reducer: aggregate.Sum,
			Samples: []core.Sample{
				{Date: core.NewDate(2024, 12, 31), Value: 500},
				{Date: core.NewDate(2025, 1, 10), Value: 10},
				{Date: core.NewDate(2025, 1, 20), Value: 20},
				{Date: core.NewDate(2025, 2, 5), Value: 5},
			},
		}},
		Correlations: []CorrelationRequest{
			{Context: correlation.MindfulnessSpending, A: sources.MetricMindfulness, B: "spending"},
		},
	}
}

func TestComputeInsights_Bundle(t *testing.T) {
	b, err := New(nil).ComputeInsights(context.Background(), fixture())
	if err != nil {
		t.Fatalf("ComputeInsights() error = %v", err)
	}

	if len(b.Scored) != 3 {
		t.Fatalf("expected 3 transactions inside the window, got %d", len(b.Scored))
	}
	for _, s := range b.Scored {
		if s.Transaction.ID == "wf" && s.Scores != (core.ScoreTriple{Financial: 70, Health: 70, Eco: 60}) {
			t.Errorf("whole foods scored %+v", s.Scores)
		}
		if s.CatalogVersion != b.CatalogVersion {
			t.Errorf("scored under version %d, bundle says %d", s.CatalogVersion, b.CatalogVersion)
		}
	}

	keys := b.BucketKeys()
	if len(keys) != 2 || keys[0] != "2025-01" || keys[1] != "2025-02" {
		t.Fatalf("BucketKeys() = %v", keys)
	}
	if !b.AccountTotal.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("AccountTotal = %s", b.AccountTotal)
	}

	spending, ok := b.Lookup("spending")
	if !ok || spending.Values()[0] != 45 || spending.Values()[1] != 60 {
		t.Errorf("spending series = %+v", spending)
	}

	mind, ok := b.Lookup(sources.MetricMindfulness)
	if !ok {
		t.Fatal("auxiliary series missing")
	}
	if got := mind.Values(); len(got) != 2 || got[0] != 30 || got[1] != 5 {
		t.Errorf("mindfulness series = %v, samples outside the window must be dropped", got)
	}

	if len(b.Correlations) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(b.Correlations))
	}
	c := b.Correlations[0]
	if c.Strength != core.StrengthStrong || c.Direction != core.DirectionNegative {
		t.Errorf("correlation = %+v", c)
	}
	if c.Message == "" {
		t.Error("correlation message should not be empty")
	}
}

func TestComputeInsights_NetWorthEndsAtBalance(t *testing.T) {
	b, err := New(nil).ComputeInsights(context.Background(), fixture())
	if err != nil {
		t.Fatal(err)
	}
	nw, ok := b.Lookup("net_worth")
	if !ok {
		t.Fatal("net worth series missing")
	}
	vals := nw.Values()
	// opening = 5000 - (3000 - 45 - 60) = 2105
	if len(vals) != 2 || vals[0] != 5060 || vals[1] != 5000 {
		t.Errorf("net worth = %v, want [5060 5000]", vals)
	}
}

func TestComputeInsights_InputErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"inverted window", func(r *Request) {
			r.Window = Window{From: core.NewDate(2025, 3, 1), To: core.NewDate(2025, 1, 1)}
		}},
		{"unknown policy", func(r *Request) { r.Policy = "hourly" }},
		{"unknown series", func(r *Request) {
			r.Correlations = []CorrelationRequest{{Context: correlation.Generic, A: "spending", B: "sleep_hours"}}
		}},
		{"single bucket", func(r *Request) {
			r.Window = Window{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 1, 31)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fixture()
			tt.mutate(&req)
			_, err := New(nil).ComputeInsights(context.Background(), req)
			if !core.IsInputError(err) {
				t.Errorf("expected InputError, got %v", err)
			}
		})
	}
}

func TestComputeInsights_EmptyInput(t *testing.T) {
	b, err := New(nil).ComputeInsights(context.Background(), Request{Policy: aggregate.Weekly})
	if err != nil {
		t.Fatalf("ComputeInsights() error = %v", err)
	}
	if len(b.Summaries) != 0 || b.Correlations == nil {
		t.Errorf("unexpected bundle %+v", b)
	}
	for _, s := range b.Series {
		if len(s.Points) != 0 {
			t.Errorf("series %s should be empty", s.Metric)
		}
	}
}

func TestComputeInsights_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).ComputeInsights(ctx, fixture()); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

func TestComputeInsights_DegradedWarnings(t *testing.T) {
	req := fixture()
	req.Transactions = append(req.Transactions, tx("blank", "", "", "-5", core.NewDate(2025, 2, 6)))
	b, err := New(nil).ComputeInsights(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Warnings) != 1 || b.Warnings[0].TransactionID != "blank" {
		t.Errorf("warnings = %+v", b.Warnings)
	}
}
