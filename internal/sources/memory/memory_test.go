package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lifescore/internal/core"
	"lifescore/internal/sources"
)

const fixture = `{
  "accounts": [
    {"id": "chk", "name": "Checking", "balance": "1250.40", "currency": "USD"},
    {"id": "sav", "name": "Savings", "balance": "5000", "currency": "USD"}
  ],
  "transactions": [
    {"id": "t2", "account_id": "chk", "merchant": "Shell", "category": "Transportation", "amount": "-60,00", "date": "2025-01-09"},
    {"id": "t1", "account_id": "chk", "merchant": "Whole Foods", "category": "Groceries", "color": "#4caf50", "amount": "-45.00", "date": "2025-01-05"},
    {"id": "t3", "account_id": "sav", "merchant": "Payroll", "category": "Salary", "amount": "3200", "date": "2025-01-31", "status": "pending"}
  ],
  "samples": {
    "mindfulness_minutes": [
      {"date": "2025-01-05", "value": 10},
      {"date": "2025-01-05", "value": 5},
      {"date": "2025-01-12", "value": 20}
    ]
  },
  "preferences": {"privacy.hide_amounts": "true"}
}`

func seeded(t *testing.T) *Store {
	t.Helper()
	s, err := NewFromReader(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("NewFromReader() error = %v", err)
	}
	return s
}

func TestSeed_LoadsEverything(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	accounts, _ := s.ListAccounts(ctx)
	if len(accounts) != 2 || accounts[0].Balance.String() != "1250.4" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}

	txs, err := s.ListTransactions(ctx, sources.TransactionFilter{})
	if err != nil || len(txs) != 3 {
		t.Fatalf("ListTransactions() = %d, %v", len(txs), err)
	}
	if txs[0].ID != "t1" || txs[2].ID != "t3" {
		t.Errorf("expected date order, got %s %s %s", txs[0].ID, txs[1].ID, txs[2].ID)
	}
	if txs[0].Category.Color != "#4caf50" || txs[1].Amount.String() != "-60" {
		t.Errorf("unexpected fields %+v %+v", txs[0].Category, txs[1].Amount)
	}
	if txs[0].Status != core.StatusCompleted || txs[2].Status != core.StatusPending {
		t.Errorf("unexpected statuses %s %s", txs[0].Status, txs[2].Status)
	}

	samples, _ := s.ListSamples(ctx, sources.MetricMindfulness, core.Date{}, core.Date{})
	if len(samples) != 2 || samples[0].Value != 15 || samples[1].Value != 20 {
		t.Errorf("samples on the same day should add up, got %+v", samples)
	}

	if v, err := s.GetPreference(ctx, sources.PrefHideAmounts); err != nil || v != "true" {
		t.Errorf("GetPreference() = %q, %v", v, err)
	}
}

func TestSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad amount", `{"transactions":[{"id":"x","amount":"lots","date":"2025-01-01"}]}`},
		{"bad date", `{"transactions":[{"id":"x","amount":"1","date":"01/02/2025"}]}`},
		{"bad status", `{"transactions":[{"id":"x","amount":"1","date":"2025-01-01","status":"void"}]}`},
		{"unknown field", `{"budgets":[]}`},
		{"not json", `accounts`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFromReader(strings.NewReader(tt.json)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if _, err := NewFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestListTransactions_Filter(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	got, _ := s.ListTransactions(ctx, sources.TransactionFilter{AccountID: "chk"})
	if len(got) != 2 {
		t.Errorf("account filter: got %d, want 2", len(got))
	}
	got, _ = s.ListTransactions(ctx, sources.TransactionFilter{From: core.NewDate(2025, 1, 6), To: core.NewDate(2025, 1, 30)})
	if len(got) != 1 || got[0].ID != "t2" {
		t.Errorf("date filter: got %+v", got)
	}
}

func TestScoresAndStaleness(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	stale, _ := s.StaleTransactions(ctx, 1, 0)
	if len(stale) != 3 {
		t.Fatalf("all transactions should start stale, got %d", len(stale))
	}

	if err := s.SaveScores(ctx, "t1", core.ScoreTriple{Financial: 70, Health: 70, Eco: 60}, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveScores(ctx, "t2", core.ScoreTriple{}, 0); err != nil {
		t.Fatal(err)
	}
	stale, _ = s.StaleTransactions(ctx, 1, 1)
	if len(stale) != 1 || stale[0].ID != "t2" {
		t.Errorf("expected t2 first among stale rows, got %+v", stale)
	}

	if err := s.SaveScores(ctx, "nope", core.ScoreTriple{}, 1); !errors.Is(err, sources.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	tx, _ := s.GetTransaction(ctx, "t1")
	tx.Merchant = "Whole Foods Market"
	if err := s.SaveTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.StoredScores(ctx, "t1"); !errors.Is(err, sources.ErrNotFound) {
		t.Error("replacing a transaction should drop its scores")
	}
}

func TestPreferencesAndSamples(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetPreference(ctx, "missing"); !errors.Is(err, sources.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	day := core.NewDate(2025, 3, 1)
	for i := 0; i < 3; i++ {
		if _, err := s.AddSample(ctx, sources.MetricHydration, day, 1); err != nil {
			t.Fatal(err)
		}
	}
	v, _ := s.AddSample(ctx, sources.MetricHydration, day, 1)
	if v != 4 {
		t.Errorf("hydration = %v, want 4", v)
	}
	if _, err := s.GetTransaction(ctx, "x"); !errors.Is(err, sources.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
