package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reportq/reportq/internal/bus/transport"
	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/observability"
	"github.com/reportq/reportq/internal/producer"
)

func main() {
	publishCfg, err := producer.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&publishCfg.Database, "database", publishCfg.Database, "path to the database the consumer should report on")
	flag.StringVar(&publishCfg.Type, "type", publishCfg.Type, "output format: CSV, XML, JSON or TBL")
	flag.IntVar(&publishCfg.Count, "count", publishCfg.Count, "number of jobs to publish")
	flag.DurationVar(&publishCfg.Interval, "interval", publishCfg.Interval, "delay between jobs when -count > 1")
	flag.Parse()
	if err := publishCfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv("reportq-publish")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobBus, err := transport.Open(ctx, cfg.Queue, cfg.Service.Name)
	if err != nil {
		logger.Error("failed to open job bus", slog.String("transport", cfg.Queue.Transport), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobBus.Close() }()

	svc := &producer.Service{Bus: jobBus, Queue: cfg.Queue.Name, Logger: logger}
	results, err := svc.PublishAll(ctx, publishCfg)
	for _, result := range results {
		fmt.Printf("published %s to %s\n", result.DeliveryID, result.Queue)
	}
	if err != nil {
		logger.Error("publish failed", slog.Int("published", len(results)), slog.Any("error", err))
		os.Exit(1)
	}
}
