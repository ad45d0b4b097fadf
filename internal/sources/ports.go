// Package sources declares the data-access ports the services read from
// and write to. The scoring core never sees these; services fetch first
// and hand plain values to the insight facade.
package sources

import (
	"context"
	"errors"

	"lifescore/internal/core"
)

// Auxiliary metric names.
const (
	MetricMindfulness    = "mindfulness_minutes"
	MetricCaloricSurplus = "caloric_surplus"
	MetricHydration      = "hydration_glasses"
	MetricStress         = "stress_level"
)

// PrefHideAmounts toggles amount masking in presentation. It never changes
// scores.
const PrefHideAmounts = "privacy.hide_amounts"

var ErrNotFound = errors.New("not found")

// KnownMetrics lists the auxiliary metrics the services understand.
func KnownMetrics() []string {
	return []string{MetricMindfulness, MetricCaloricSurplus, MetricHydration, MetricStress}
}

// TransactionFilter narrows a listing. Zero fields match everything.
type TransactionFilter struct {
	AccountID string
	From, To  core.Date
}

// Matches reports whether tx passes the filter.
func (f TransactionFilter) Matches(tx core.Transaction) bool {
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To.Time) {
		return false
	}
	return true
}

// Ports for outbound adapters.
type (
	TransactionReader interface {
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	}

	TransactionWriter interface {
		SaveTransaction(ctx context.Context, tx core.Transaction) error
	}

	AccountReader interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
	}

	// AccountWriter inserts or replaces an account by id.
	AccountWriter interface {
		SaveAccount(ctx context.Context, a core.Account) error
	}

	// MetricReader returns daily samples of one auxiliary metric, oldest
	// first.
	MetricReader interface {
		ListSamples(ctx context.Context, metric string, from, to core.Date) ([]core.Sample, error)
	}

	// MetricWriter adds delta to the day's value and returns the new value.
	MetricWriter interface {
		AddSample(ctx context.Context, metric string, day core.Date, delta float64) (float64, error)
	}

	PreferenceStore interface {
		GetPreference(ctx context.Context, key string) (string, error)
		SetPreference(ctx context.Context, key, value string) error
	}

	// ScoreStore persists classifier output next to the transactions.
	ScoreStore interface {
		SaveScores(ctx context.Context, id string, s core.ScoreTriple, catalogVersion int) error
		// StoredScores returns the persisted scores and the catalog version
		// they were computed with, or ErrNotFound when the row is unscored.
		StoredScores(ctx context.Context, id string) (core.ScoreTriple, int, error)
		// StaleTransactions returns transactions never scored or scored
		// under a different catalog version.
		StaleTransactions(ctx context.Context, catalogVersion, limit int) ([]core.Transaction, error)
	}
)

// Store is everything a backend offers.
type Store interface {
	TransactionReader
	TransactionWriter
	AccountReader
	AccountWriter
	MetricReader
	MetricWriter
	PreferenceStore
	ScoreStore
	Close() error
}
