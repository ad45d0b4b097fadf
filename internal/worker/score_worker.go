package worker

import (
	"context"
	"errors"
	"fmt"

	"lifescore/internal/amqp"
	"lifescore/internal/classifier"
	"lifescore/internal/log"
	"lifescore/internal/sources"
)

// Recorder observes scoring outcomes.
type Recorder interface {
	Classified(degraded bool)
}

// ScoreWorker persists the scores of transactions announced over AMQP.
type ScoreWorker struct {
	store      sources.Store
	classifier *classifier.Classifier
	logger     *log.Logger
	recorder   Recorder
	batchSize  int
}

func NewScoreWorker(store sources.Store, c *classifier.Classifier, batchSize int, logger *log.Logger, recorder Recorder) *ScoreWorker {
	if c == nil {
		c = classifier.New(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ScoreWorker{
		store:      store,
		classifier: c,
		logger:     logger.WithComponent(log.ComponentWorker),
		recorder:   recorder,
		batchSize:  batchSize,
	}
}

// HandleScoreRequest scores one transaction under the local catalog. A
// transaction that no longer exists is acknowledged and skipped.
func (w *ScoreWorker) HandleScoreRequest(ctx context.Context, msg *amqp.ScoreRequestMessage) error {
	version := w.classifier.Catalog().Version()
	if msg.CatalogVersion != version {
		w.logger.WarnContext(ctx, "Score request from a different catalog version",
			log.FieldTransactionID, msg.ID,
			"requested_version", msg.CatalogVersion,
			log.FieldCatalogVersion, version)
	}

	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if errors.Is(err, sources.ErrNotFound) {
		w.logger.WarnContext(ctx, "Transaction vanished before scoring", log.FieldTransactionID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	scored, warning := w.classifier.Inspect(tx)
	if warning != nil {
		w.logger.WarnContext(ctx, "Transaction scored with degraded input",
			log.FieldTransactionID, tx.ID, log.FieldMissing, warning.Missing)
	}
	if w.recorder != nil {
		w.recorder.Classified(warning != nil)
	}

	if err := w.store.SaveScores(ctx, tx.ID, scored.Scores, scored.CatalogVersion); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}

	w.logger.InfoContext(ctx, "Scored transaction",
		log.FieldOperation, log.OpConsume,
		log.FieldTransactionID, tx.ID,
		"financial", scored.Scores.Financial,
		"health", scored.Scores.Health,
		"eco", scored.Scores.Eco)
	return nil
}

// StartupScoreCheck scores whatever was left stale while the worker was
// down. It is a backup for lost messages; the rescore processor covers the
// steady state.
func (w *ScoreWorker) StartupScoreCheck(ctx context.Context) error {
	stale, err := w.store.StaleTransactions(ctx, w.classifier.Catalog().Version(), w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list stale transactions for startup check: %w", err)
	}

	if len(stale) == 0 {
		w.logger.InfoContext(ctx, "No stale scores found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found stale scores on startup, processing...", log.FieldCount, len(stale))

	successCount := 0
	errorCount := 0
	for _, tx := range stale {
		if err := w.HandleScoreRequest(ctx, amqp.NewScoreRequestMessage(tx.ID, w.classifier.Catalog().Version())); err != nil {
			w.logger.ErrorContext(ctx, "Failed to score transaction during startup",
				log.FieldTransactionID, tx.ID, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup score check completed",
		"total", len(stale),
		"scored", successCount,
		"errors", errorCount)
	return nil
}
