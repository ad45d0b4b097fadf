package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lifescore/internal/cli"
	"lifescore/internal/log"
	"lifescore/internal/services"
	"lifescore/internal/worker"
)

func main() {
	cfg, logger, err := cli.LoadAndValidateConfig(os.Stdout)
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting lifescore-worker")

	if cfg.DataBackend != "sqlite" {
		logger.Warn("Worker is running against a non-shared backend; scores will not reach the server",
			"backend", cfg.DataBackend)
	}

	rt, err := cli.NewRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize runtime", log.FieldError, err)
		os.Exit(1)
	}

	scorer := worker.NewScoreWorker(rt.Backend.Store, rt.Classifier, cfg.RescoreBatchSize, logger, rt.Metrics)
	rescorer := services.NewRescoreProcessor(rt.Backend.Store, rt.Classifier, services.RescoreProcessorConfig{
		PollInterval: cfg.RescoreInterval,
		BatchSize:    cfg.RescoreBatchSize,
	}, logger, rt.Metrics)

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           rt.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) error {
		var errs []error
		if err := rescorer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(ctx))
		}
		errs = append(errs, rt.Close())
		return errors.Join(errs...)
	})

	logger.Info("Performing startup score check...", log.FieldOperation, log.OpStartup)
	if err := scorer.StartupScoreCheck(ctx); err != nil {
		logger.Error("Failed startup score check", log.FieldError, err)
	}

	if err := rescorer.Start(ctx); err != nil {
		logger.Error("Failed to start rescore processor", log.FieldError, err)
		os.Exit(1)
	}

	if client := rt.Backend.AMQP; client != nil {
		go func() {
			if err := client.ConsumeScoreRequests(ctx, scorer.HandleScoreRequest); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Score request consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("No AMQP_URL configured, relying on the rescore loop only")
	}

	<-ctx.Done()
	<-done
	logger.Info("Worker stopped gracefully")
}
