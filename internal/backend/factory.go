package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"lifescore/internal/amqp"
	"lifescore/internal/sources"
	"lifescore/internal/sources/memory"
	"lifescore/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store sources.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(ctx, config)
	case MemoryBackend:
		store, err = f.createMemoryStore(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: store, Cleanup: store.Close}

	// Broker is optional
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, scoring inline", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = client
			result.AMQP = client
			result.Cleanup = func() error {
				return errors.Join(client.Close(), store.Close())
			}
		}
	}

	return result, nil
}

func (f *DefaultFactory) createSQLiteStore(ctx context.Context, config Config) (sources.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	if config.SeedFile != "" {
		if err := seedIfEmpty(ctx, repo, config.SeedFile); err != nil {
			repo.Close()
			return nil, err
		}
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (sources.Store, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized empty memory backend")
		return memory.New(), nil
	}

	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed file: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return store, nil
}

// seedIfEmpty applies the fixture to a database that holds no data yet.
// Samples accumulate, so seeding twice would double them.
func seedIfEmpty(ctx context.Context, store sources.Store, path string) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("check seed state: %w", err)
	}
	txs, err := store.ListTransactions(ctx, sources.TransactionFilter{})
	if err != nil {
		return fmt.Errorf("check seed state: %w", err)
	}
	if len(accounts) > 0 || len(txs) > 0 {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer file.Close()
	seed, err := memory.ReadSeed(file)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, store); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}
