package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lifescore/internal/aggregate"
	"lifescore/internal/cli"
	apphttp "lifescore/internal/http"
	"lifescore/internal/log"
)

func main() {
	cfg, logger, err := cli.LoadAndValidateConfig(os.Stdout)
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	rt, err := cli.NewRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize runtime", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	policy, _ := aggregate.ParsePolicy(cfg.DefaultBucket)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Insights:      rt.Insights,
		Transactions:  rt.Transactions,
		Catalog:       rt.Catalog,
		Metrics:       rt.Metrics,
		Logger:        logger,
		DefaultPolicy: policy,
		Ready:         rt.Ready,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), rt.Close())
	})

	logger.Info("Starting lifescore server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldCatalogVersion, rt.Catalog.Version(),
		log.FieldBucketPolicy, policy,
		"scoring", scoringMode(rt))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = rt.Close()
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}

func scoringMode(rt *cli.Runtime) string {
	if rt.Backend.Publisher != nil {
		return "worker"
	}
	return "inline"
}
