// Package cli provides process bootstrap shared by the binaries and the
// cobra command tree of lifescore-cli.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lifescore/internal/backend"
	"lifescore/internal/cache"
	"lifescore/internal/classifier"
	"lifescore/internal/config"
	"lifescore/internal/insights"
	"lifescore/internal/log"
	"lifescore/internal/metrics"
	"lifescore/internal/rules"
	"lifescore/internal/services"
)

// LoadEnvFile loads .env files for local development. A missing file is
// not an error; production sets the environment directly.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// SetupLogger builds the process logger from configuration and installs it
// as the slog default. An unparsable level falls back to info; Validate
// reports it.
func SetupLogger(cfg *config.Config, out io.Writer) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	lc := log.DefaultConfig()
	lc.Level = level
	lc.Format = cfg.LogFormat
	if out != nil {
		lc.Output = out
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads .env, the environment and validates the
// result. The logger is returned even when validation fails so the caller
// can report the error.
func LoadAndValidateConfig(out io.Writer) (*config.Config, *log.Logger, error) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, out)
	if err := cfg.Validate(); err != nil {
		return cfg, logger, err
	}
	return cfg, logger, nil
}

// LoadCatalog reads RULES_FILE, or returns the built-in catalog.
func LoadCatalog(cfg *config.Config, logger *log.Logger) (*rules.Catalog, error) {
	if cfg.RulesFile == "" {
		catalog := rules.Default()
		logger.Info("Using built-in rule catalog", log.FieldCatalogVersion, catalog.Version())
		return catalog, nil
	}
	catalog, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	logger.Info("Loaded rule catalog", "path", cfg.RulesFile, log.FieldCatalogVersion, catalog.Version())
	return catalog, nil
}

// Runtime is the wired application: store, broker, classifier, cached
// insight facade and services.
type Runtime struct {
	Config       *config.Config
	Logger       *log.Logger
	Catalog      *rules.Catalog
	Classifier   *classifier.Classifier
	Metrics      *metrics.Metrics
	Backend      *backend.BackendResult
	Insights     *services.InsightService
	Transactions *services.TransactionService
	Cached       *insights.CachedFacade
	caches       *cache.Manager
}

// NewRuntime wires every collaborator from cfg. Close releases them.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	catalog, err := LoadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	m := metrics.New()
	c := classifier.New(catalog)
	cached := insights.NewCached(insights.New(c), cfg.CacheSize, cfg.CacheTTL, m)

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register("insights", cached.Cache())
	caches.StartCleanup(cfg.CacheTTL)

	return &Runtime{
		Config:       cfg,
		Logger:       logger,
		Catalog:      catalog,
		Classifier:   c,
		Metrics:      m,
		Backend:      result,
		Insights:     services.NewInsightService(result.Store, cached, logger),
		Transactions: services.NewTransactionService(result.Store, c, result.Publisher, logger),
		Cached:       cached,
		caches:       caches,
	}, nil
}

// Ready pings the store when it supports it.
func (r *Runtime) Ready(ctx context.Context) error {
	if p, ok := r.Backend.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close stops the cache sweeper and releases the backend.
func (r *Runtime) Close() error {
	r.caches.Stop()
	if r.Backend.Cleanup == nil {
		return nil
	}
	return r.Backend.Cleanup()
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After
// the signal, cleanup runs with a deadline of timeout and done is closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context) error) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			if err := cleanup(shutdownCtx); err != nil {
				logger.Error("Shutdown cleanup failed", log.FieldError, err)
			}
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
