package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifescore/internal/classifier"
	"lifescore/internal/log"
	"lifescore/internal/sources"
)

// RescoreProcessorConfig holds configuration for the rescore processor
type RescoreProcessorConfig struct {
	// PollInterval is how often to look for stale scores (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of transactions re-scored per poll (default: 200)
	BatchSize int
}

// DefaultRescoreProcessorConfig returns sensible defaults
func DefaultRescoreProcessorConfig() RescoreProcessorConfig {
	return RescoreProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    200,
	}
}

// RescoreRecorder observes processed batches.
type RescoreRecorder interface {
	Rescored(ok, failed int)
}

// RescoreProcessor keeps stored scores in step with the active catalog. It
// re-scores transactions that were never scored, were edited, or were
// scored under another catalog version.
type RescoreProcessor struct {
	store      sources.Store
	classifier *classifier.Classifier
	config     RescoreProcessorConfig
	logger     *log.Logger
	recorder   RescoreRecorder

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRescoreProcessor creates a new rescore processor. recorder may be nil.
func NewRescoreProcessor(store sources.Store, c *classifier.Classifier, config RescoreProcessorConfig, logger *log.Logger, recorder RescoreRecorder) *RescoreProcessor {
	if c == nil {
		c = classifier.New(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RescoreProcessor{
		store:      store,
		classifier: c,
		config:     config,
		logger:     logger.WithComponent(log.ComponentWorker),
		recorder:   recorder,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *RescoreProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("rescore processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Rescore processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		log.FieldCatalogVersion, p.classifier.Catalog().Version())

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *RescoreProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Rescore processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Rescore processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *RescoreProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RescoreProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Catch up immediately on startup
	p.drain(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes full batches until the backlog is gone or a batch makes
// no progress.
func (p *RescoreProcessor) drain(ctx context.Context) {
	for {
		n, failed, err := p.ProcessBatch(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process rescore batch", log.FieldError, err)
			return
		}
		if n < p.config.BatchSize || failed > 0 {
			return
		}
		select {
		case <-p.stopCh:
			return
		default:
		}
	}
}

// ProcessBatch re-scores one batch of stale transactions and returns how
// many it looked at and how many could not be saved.
func (p *RescoreProcessor) ProcessBatch(ctx context.Context) (int, int, error) {
	version := p.classifier.Catalog().Version()
	stale, err := p.store.StaleTransactions(ctx, version, p.config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list stale transactions: %w", err)
	}
	if len(stale) == 0 {
		return 0, 0, nil
	}

	p.logger.DebugContext(ctx, "Processing rescore batch", log.FieldCount, len(stale))

	scored, _, err := p.classifier.ScoreAll(ctx, stale)
	if err != nil {
		return 0, 0, err
	}

	failed := 0
	for _, s := range scored {
		if err := p.store.SaveScores(ctx, s.Transaction.ID, s.Scores, s.CatalogVersion); err != nil {
			failed++
			p.logger.WarnContext(ctx, "Failed to save scores",
				log.FieldTransactionID, s.Transaction.ID, log.FieldError, err)
		}
	}
	if p.recorder != nil {
		p.recorder.Rescored(len(scored)-failed, failed)
	}

	p.logger.InfoContext(ctx, "Rescored transactions",
		log.FieldOperation, log.OpRescore,
		log.FieldCount, len(scored)-failed,
		log.FieldCatalogVersion, version)
	return len(scored), failed, nil
}
