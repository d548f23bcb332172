package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/reportq/reportq/internal/archive"
	"github.com/reportq/reportq/internal/bus/transport"
	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/consumer"
	"github.com/reportq/reportq/internal/dispatch"
	"github.com/reportq/reportq/internal/observability"
	"github.com/reportq/reportq/internal/query"
	"github.com/reportq/reportq/internal/query/duckdb"
	"github.com/reportq/reportq/internal/query/sqlite"
	"github.com/reportq/reportq/internal/runner"
	s3store "github.com/reportq/reportq/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("reportq-consumer")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout carries report text only.
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobBus, err := transport.Open(ctx, cfg.Queue, cfg.Service.Name)
	if err != nil {
		logger.Error("failed to open job bus", slog.String("transport", cfg.Queue.Transport), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobBus.Close() }()

	dispatcher := &dispatch.Service{
		Runner: runner.New(query.Router{SQLite: sqlite.NewOpener(), DuckDB: duckdb.NewOpener()}, logger),
		Output: os.Stdout,
		Logger: logger,
	}
	if cfg.Archive.Enabled {
		store, err := s3store.New(ctx, s3store.ConfigFromObjectStore(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		dispatcher.Archiver = archive.New(store)
	}

	consumerID := cfg.Consumer.ConsumerID
	if consumerID == "" {
		consumerID = "reportq-consumer-" + uuid.NewString()
	}
	svc := &consumer.Service{
		Bus:     jobBus,
		Handler: dispatcher,
		Config: consumer.Config{
			Queue:        cfg.Queue.Name,
			ConsumerID:   consumerID,
			ClaimLimit:   1,
			PollInterval: cfg.Consumer.PollInterval,
		},
		Logger: logger,
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      observability.NewOpsHandler(logger, jobBus.Ping),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	go func() {
		logger.Info("starting ops server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", slog.Any("error", err))
			stop()
		}
	}()

	runErr := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", slog.Any("error", err))
	}
	if runErr != nil {
		logger.Error("consumer failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}
