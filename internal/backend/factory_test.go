package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lifescore/internal/config"
	"lifescore/internal/sources"
)

const seedJSON = `{
  "accounts": [{"id": "chk", "name": "Checking", "balance": "1200.50", "currency": "USD"}],
  "transactions": [
    {"id": "t1", "account_id": "chk", "merchant": "Whole Foods", "category": "Groceries", "amount": "-45.00", "date": "2025-03-10"}
  ],
  "samples": {"hydration_glasses": [{"date": "2025-03-10", "value": 6}]},
  "preferences": {"privacy.hide_amounts": "true"}
}`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func quietFactory() Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPQueue: "q"})
	if err != nil || cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.AMQPQueue != "q" {
		t.Errorf("FromAppConfig() = %+v, %v", cfg, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "postgres"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 2 || got[0] != "memory" || got[1] != "sqlite" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func checkSeeded(t *testing.T, store sources.Store) {
	t.Helper()
	ctx := context.Background()
	txs, err := store.ListTransactions(ctx, sources.TransactionFilter{})
	if err != nil || len(txs) != 1 || txs[0].Merchant != "Whole Foods" {
		t.Fatalf("transactions = %+v, %v", txs, err)
	}
	samples, _ := store.ListSamples(ctx, sources.MetricHydration, txs[0].Date, txs[0].Date)
	if len(samples) != 1 || samples[0].Value != 6 {
		t.Errorf("samples = %+v", samples)
	}
	if v, _ := store.GetPreference(ctx, sources.PrefHideAmounts); v != "true" {
		t.Errorf("preference = %q", v)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: writeSeed(t)})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()
	if res.Publisher != nil || res.AMQP != nil {
		t.Error("no broker was configured")
	}
	checkSeeded(t, res.Store)
}

func TestCreateBackend_SQLiteSeedsOnce(t *testing.T) {
	cfg := Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "lifescore.db"),
		SeedFile:     writeSeed(t),
	}
	for i := 0; i < 2; i++ {
		res, err := quietFactory().CreateBackend(context.Background(), cfg)
		if err != nil {
			t.Fatalf("run %d: CreateBackend() error = %v", i, err)
		}
		checkSeeded(t, res.Store)
		if err := res.Cleanup(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateBackend_BadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"unknown": 1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: path}); err == nil {
		t.Error("expected error for an invalid seed file")
	}
}
