package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/fogoscan/service/backend"
	"github.com/brojonat/fogoscan/service/config"
	"github.com/brojonat/fogoscan/service/details"
	"github.com/brojonat/fogoscan/service/metrics"
	natspkg "github.com/brojonat/fogoscan/service/nats"
	"github.com/brojonat/fogoscan/service/progress"
	"github.com/brojonat/fogoscan/service/scanner"
	"github.com/brojonat/fogoscan/service/server"
	"github.com/brojonat/fogoscan/service/solana"
	"github.com/brojonat/fogoscan/service/temporal"
	"github.com/brojonat/fogoscan/service/validators"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"store", cfg.StoreBackend,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	store, err := backend.Open(ctx, cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to open scan cache", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rpcClient := solana.NewClient(solana.NewRPCClient(cfg.RPCURL), cfg.RPCEndpointLabel, metricsCollector, logger)
	logger.Info("initialized RPC client", "url", cfg.RPCURL, "endpoint", cfg.RPCEndpointLabel)

	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	}

	scans := scanner.New(store, rpcClient, metricsCollector, logger)
	hub := progress.NewHub(scans, publisher, logger)
	defer hub.Close()

	enricher := details.New(rpcClient, metricsCollector, logger)
	defer enricher.Close()

	validatorService := validators.NewService(rpcClient, metricsCollector, logger)

	var backfill server.BackfillStarter
	if cfg.BackfillEnabled() {
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		backfill = temporalClient

		// Backfills run through the hub so browsers can join them.
		worker, err := temporal.NewWorker(temporal.WorkerConfig{
			TemporalHost:      cfg.TemporalHost,
			TemporalNamespace: cfg.TemporalNamespace,
			TaskQueue:         cfg.TemporalTaskQueue,
			Runner:            hub,
			Store:             store,
			Metrics:           metricsCollector,
			Logger:            logger,
		})
		if err != nil {
			logger.Error("failed to create temporal worker", "error", err)
			os.Exit(1)
		}
		if err := worker.StartAsync(); err != nil {
			logger.Error("failed to start temporal worker", "error", err)
			os.Exit(1)
		}
		defer worker.Stop()
	}

	httpServer := server.New(cfg, validatorService, hub, store, enricher, backfill, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"rpc_url", cfg.RPCURL,
		"nats_enabled", publisher != nil,
		"backfill_enabled", backfill != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
