package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lifescore/internal/classifier"
	"lifescore/internal/core"
	"lifescore/internal/log"
	"lifescore/internal/sources"
)

// Publisher hands a transaction to the scoring worker.
type Publisher interface {
	PublishScoreRequest(ctx context.Context, id string, catalogVersion int) error
	Close() error
}

// NewTransaction is the user-supplied part of a transaction. Amount is a
// decimal string; a blank ID gets a generated one.
type NewTransaction struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Merchant  string `json:"merchant"`
	Category  string `json:"category"`
	Color     string `json:"color"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Status    string `json:"status"`
}

// Build parses and validates the input into a transaction. Failures are
// InputErrors.
func (n NewTransaction) Build() (core.Transaction, error) {
	amount, err := core.ParseAmount(n.Amount)
	if err != nil {
		return core.Transaction{}, core.NewInputError("create transaction", "%v", err)
	}
	date, err := core.ParseDate(n.Date)
	if err != nil {
		return core.Transaction{}, core.NewInputError("create transaction", "date %q: %v", n.Date, err)
	}
	status := core.Status(strings.ToLower(strings.TrimSpace(n.Status)))
	if status == "" {
		status = core.StatusCompleted
	}
	id := strings.TrimSpace(n.ID)
	if id == "" {
		id = uuid.NewString()
	}
	tx := core.Transaction{
		ID:        id,
		AccountID: strings.TrimSpace(n.AccountID),
		Merchant:  strings.TrimSpace(n.Merchant),
		Category:  core.Category{Name: strings.TrimSpace(n.Category), Color: n.Color},
		Amount:    amount,
		Date:      date,
		Status:    status,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, core.NewInputError("create transaction", "%v", err)
	}
	return tx, nil
}

// TransactionService stores transactions and gets them scored, either by
// handing them to the worker or inline when no publisher is configured.
type TransactionService struct {
	store      sources.Store
	classifier *classifier.Classifier
	publisher  Publisher
	logger     *log.Logger
}

// NewTransactionService wires the service. publisher may be nil.
func NewTransactionService(store sources.Store, c *classifier.Classifier, publisher Publisher, logger *log.Logger) *TransactionService {
	if c == nil {
		c = classifier.New(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &TransactionService{
		store:      store,
		classifier: c,
		publisher:  publisher,
		logger:     logger.WithComponent(log.ComponentScoring),
	}
}

// CreateTransaction saves a transaction and returns its current scores.
// Persisted scores are written by the worker when a publisher exists.
func (s *TransactionService) CreateTransaction(ctx context.Context, in NewTransaction) (core.ScoredTransaction, error) {
	tx, err := in.Build()
	if err != nil {
		return core.ScoredTransaction{}, err
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return core.ScoredTransaction{}, fmt.Errorf("save transaction: %w", err)
	}

	scored, warning := s.classifier.Inspect(tx)
	if warning != nil {
		s.logger.WarnContext(ctx, "Transaction scored with degraded input",
			log.FieldTransactionID, tx.ID, log.FieldMissing, warning.Missing)
	}

	if s.publisher == nil {
		if err := s.store.SaveScores(ctx, tx.ID, scored.Scores, scored.CatalogVersion); err != nil {
			return core.ScoredTransaction{}, fmt.Errorf("save scores: %w", err)
		}
		return scored, nil
	}

	if err := s.publisher.PublishScoreRequest(ctx, tx.ID, scored.CatalogVersion); err != nil {
		// The rescore loop picks the row up later.
		s.logger.ErrorContext(ctx, "Failed to publish score request",
			log.FieldTransactionID, tx.ID, log.FieldError, err)
	}
	return scored, nil
}

// StoredTransaction is a transaction with the scores persisted for it.
// Scores is nil until the worker or the rescore loop has scored the row.
type StoredTransaction struct {
	Transaction    core.Transaction
	Scores         *core.ScoreTriple
	CatalogVersion int
	// Stale is set when the stored scores are missing or were computed
	// under another catalog version than the running one.
	Stale bool
}

// CatalogVersion is the version of the catalog the service scores with.
func (s *TransactionService) CatalogVersion() int { return s.classifier.Catalog().Version() }

// Transaction reads a stored transaction and its persisted scores.
func (s *TransactionService) Transaction(ctx context.Context, id string) (StoredTransaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("get transaction: %w", err)
	}
	out := StoredTransaction{Transaction: tx, Stale: true}
	scores, version, err := s.store.StoredScores(ctx, id)
	switch {
	case errors.Is(err, sources.ErrNotFound):
		return out, nil
	case err != nil:
		return StoredTransaction{}, fmt.Errorf("stored scores: %w", err)
	}
	out.Scores = &scores
	out.CatalogVersion = version
	out.Stale = version != s.CatalogVersion()
	return out, nil
}

// Classify scores a transaction without storing it, with per-dimension
// rule traces.
func (s *TransactionService) Classify(in NewTransaction) (core.ScoredTransaction, map[string][]string, error) {
	tx, err := in.Build()
	if err != nil {
		return core.ScoredTransaction{}, nil, err
	}
	triple, trace := s.classifier.Explain(tx)
	return core.ScoredTransaction{
		Transaction:    tx,
		Scores:         triple,
		CatalogVersion: s.classifier.Catalog().Version(),
	}, trace, nil
}

// RecordSample adds delta to a signal's total for day and returns the new
// total.
func (s *TransactionService) RecordSample(ctx context.Context, metric string, day core.Date, delta float64) (float64, error) {
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return 0, core.NewInputError("record sample", "metric is required")
	}
	if err := day.Validate(); err != nil {
		return 0, core.NewInputError("record sample", "%v", err)
	}
	total, err := s.store.AddSample(ctx, metric, day, delta)
	if err != nil {
		return 0, fmt.Errorf("record sample: %w", err)
	}
	return total, nil
}

// HideAmounts reports the privacy preference. An unset preference means
// amounts are shown.
func (s *TransactionService) HideAmounts(ctx context.Context) (bool, error) {
	v, err := s.store.GetPreference(ctx, sources.PrefHideAmounts)
	if errors.Is(err, sources.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read preference: %w", err)
	}
	hide, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return hide, nil
}

// Preference returns a stored preference value.
func (s *TransactionService) Preference(ctx context.Context, key string) (string, error) {
	return s.store.GetPreference(ctx, key)
}

// SetPreference stores a preference. Boolean preferences are normalised.
func (s *TransactionService) SetPreference(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return core.NewInputError("set preference", "key is required")
	}
	if key == sources.PrefHideAmounts {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return core.NewInputError("set preference", "%s must be a boolean", key)
		}
		value = strconv.FormatBool(b)
	}
	return s.store.SetPreference(ctx, key, value)
}

// Close closes the store and the publisher.
func (s *TransactionService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}

	return nil
}
