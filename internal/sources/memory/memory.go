// Package memory is an in-process implementation of every source port,
// optionally seeded from a JSON fixture.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"lifescore/internal/core"
	"lifescore/internal/sources"
)

type scoreRecord struct {
	scores  core.ScoreTriple
	version int
}

type Store struct {
	mu       sync.RWMutex
	accounts []core.Account
	txs      map[string]core.Transaction
	scores   map[string]scoreRecord
	samples  map[string]map[string]core.Sample
	prefs    map[string]string
}

var _ sources.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:     make(map[string]core.Transaction),
		scores:  make(map[string]scoreRecord),
		samples: make(map[string]map[string]core.Sample),
		prefs:   make(map[string]string),
	}
}

// SaveAccount inserts or replaces an account, keeping insertion order.
func (s *Store) SaveAccount(_ context.Context, a core.Account) error {
	if a.ID == "" {
		return fmt.Errorf("save account: %w", core.ErrEmptyID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.accounts {
		if s.accounts[i].ID == a.ID {
			s.accounts[i] = a
			return nil
		}
	}
	s.accounts = append(s.accounts, a)
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts), nil
}

// ListTransactions returns matching transactions ordered by date, then id.
func (s *Store) ListTransactions(_ context.Context, f sources.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, byDateThenID)
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, sources.ErrNotFound)
	}
	return tx, nil
}

// SaveTransaction inserts or replaces tx. Replacing drops its stored scores.
func (s *Store) SaveTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx
	delete(s.scores, tx.ID)
	return nil
}

func (s *Store) SaveScores(_ context.Context, id string, triple core.ScoreTriple, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("save scores %s: %w", id, sources.ErrNotFound)
	}
	s.scores[id] = scoreRecord{scores: triple, version: version}
	return nil
}

func (s *Store) StoredScores(_ context.Context, id string) (core.ScoreTriple, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.scores[id]
	if !ok {
		return core.ScoreTriple{}, 0, fmt.Errorf("scores %s: %w", id, sources.ErrNotFound)
	}
	return r.scores, r.version, nil
}

func (s *Store) StaleTransactions(_ context.Context, version, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	var out []core.Transaction
	for id, tx := range s.txs {
		if r, ok := s.scores[id]; ok && r.version == version {
			continue
		}
		out = append(out, tx)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, byDateThenID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListSamples(_ context.Context, metric string, from, to core.Date) ([]core.Sample, error) {
	s.mu.RLock()
	var out []core.Sample
	for _, sample := range s.samples[metric] {
		if !from.IsZero() && sample.Date.Before(from.Time) {
			continue
		}
		if !to.IsZero() && sample.Date.After(to.Time) {
			continue
		}
		out = append(out, sample)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b core.Sample) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (s *Store) AddSample(_ context.Context, metric string, day core.Date, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay, ok := s.samples[metric]
	if !ok {
		byDay = make(map[string]core.Sample)
		s.samples[metric] = byDay
	}
	key := day.String()
	sample := byDay[key]
	sample.Date = day
	sample.Value += delta
	byDay[key] = sample
	return sample.Value, nil
}

func (s *Store) GetPreference(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prefs[key]
	if !ok {
		return "", fmt.Errorf("preference %s: %w", key, sources.ErrNotFound)
	}
	return v, nil
}

func (s *Store) SetPreference(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
	return nil
}

func (s *Store) Close() error { return nil }

func byDateThenID(a, b core.Transaction) int {
	if c := a.Date.Compare(b.Date.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
