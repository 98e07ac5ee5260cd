package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/analysis"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/reallocation"
	"fintrack/internal/services"
)

func main() {
	cfg, logger := cli.MustLoad()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	initCtx := context.Background()

	analyzer, err := factory.CreateAnalyzer(initCtx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize analyzer", log.FieldError, err, "analyzer", backendConfig.Analyzer)
		os.Exit(1)
	}

	var opts []services.PredictionOption
	history, err := factory.CreateHistory(initCtx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize prediction history", log.FieldError, err)
		os.Exit(1)
	}
	if history != nil {
		opts = append(opts, services.WithStore(history.Store))
		if history.Publisher != nil {
			opts = append(opts, services.WithPublisher(history.Publisher))
		}
	}

	svc := services.NewPredictionService(analyzer, reallocation.NewEngine(logger), logger, opts...)

	serverOpts := apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}

	cacheManager := cache.NewManager(logger)
	if cached, ok := analyzer.(*analysis.Cached); ok {
		serverOpts.CacheStats = cached.Cache().Stats
		cacheManager.Register(cached.Cache())
		cacheManager.StartCleanup(time.Minute)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, serverOpts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := svc.Close(); err != nil {
			logger.Error("Failed to release history resources", log.FieldError, err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"analyzer", svc.AnalyzerName(),
		"history_enabled", svc.HistoryEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
