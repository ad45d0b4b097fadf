package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"lifescore/internal/core"
	"lifescore/internal/sources"
)

// Seed is the JSON fixture layout. Amounts and balances are strings so
// fixtures never pass through binary floating point.
type Seed struct {
	Accounts []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	} `json:"accounts"`
	Transactions []struct {
		ID        string `json:"id"`
		AccountID string `json:"account_id"`
		Merchant  string `json:"merchant"`
		Category  string `json:"category"`
		Color     string `json:"color"`
		Amount    string `json:"amount"`
		Date      string `json:"date"`
		Status    string `json:"status"`
	} `json:"transactions"`
	Samples map[string][]struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	} `json:"samples"`
	Preferences map[string]string `json:"preferences"`
}

// NewFromFile builds a store from the fixture at path.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return NewFromReader(f)
}

// NewFromReader builds a store from a JSON fixture.
func NewFromReader(r io.Reader) (*Store, error) {
	seed, err := ReadSeed(r)
	if err != nil {
		return nil, err
	}
	s := New()
	if err := s.Load(seed); err != nil {
		return nil, err
	}
	return s, nil
}

// Seeder is the write side a fixture needs.
type Seeder interface {
	sources.AccountWriter
	sources.TransactionWriter
	sources.MetricWriter
	sources.PreferenceStore
}

// Load adds the fixture's contents to the store.
func (s *Store) Load(seed Seed) error {
	return seed.Apply(context.Background(), s)
}

// Apply writes the fixture into dst, which may be any backend.
func (seed Seed) Apply(ctx context.Context, dst Seeder) error {
	for _, a := range seed.Accounts {
		balance, err := core.ParseAmount(a.Balance)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
		if err := dst.SaveAccount(ctx, core.Account{ID: a.ID, Name: a.Name, Balance: balance, Currency: a.Currency}); err != nil {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
	}

	for _, t := range seed.Transactions {
		amount, err := core.ParseAmount(t.Amount)
		if err != nil {
			return fmt.Errorf("seed transaction %s: %w", t.ID, err)
		}
		date, err := core.ParseDate(t.Date)
		if err != nil {
			return fmt.Errorf("seed transaction %s: %w", t.ID, err)
		}
		status := core.Status(t.Status)
		if status == "" {
			status = core.StatusCompleted
		}
		tx := core.Transaction{
			ID:        t.ID,
			AccountID: t.AccountID,
			Merchant:  t.Merchant,
			Category:  core.Category{Name: t.Category, Color: t.Color},
			Amount:    amount,
			Date:      date,
			Status:    status,
		}
		if err := dst.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("seed transaction %s: %w", t.ID, err)
		}
	}

	for metric, samples := range seed.Samples {
		for _, sm := range samples {
			date, err := core.ParseDate(sm.Date)
			if err != nil {
				return fmt.Errorf("seed sample %s: %w", metric, err)
			}
			if _, err := dst.AddSample(ctx, metric, date, sm.Value); err != nil {
				return fmt.Errorf("seed sample %s: %w", metric, err)
			}
		}
	}

	for k, v := range seed.Preferences {
		if err := dst.SetPreference(ctx, k, v); err != nil {
			return fmt.Errorf("seed preference %s: %w", k, err)
		}
	}
	return nil
}

// ReadSeed decodes a fixture without applying it.
func ReadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}
