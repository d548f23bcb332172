package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reportq/reportq/internal/archive"
	"github.com/reportq/reportq/internal/cli/reportqctl"
	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/observability"
	"github.com/reportq/reportq/internal/query"
	"github.com/reportq/reportq/internal/query/duckdb"
	"github.com/reportq/reportq/internal/query/sqlite"
	"github.com/reportq/reportq/internal/runner"
	s3store "github.com/reportq/reportq/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("reportqctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("REPORTQ_CLI_TIMEOUT")), 10*time.Second)
	options := reportqctl.Options{
		OpsURL:  envOr("REPORTQ_OPS_URL", opsURLFromAddr(cfg.HTTP.Address)),
		Timeout: timeout,
		Runner:  runner.New(query.Router{SQLite: sqlite.NewOpener(), DuckDB: duckdb.NewOpener()}, logger),
		OpenArchive: func(ctx context.Context) (reportqctl.Archive, error) {
			store, err := s3store.New(ctx, s3store.ConfigFromObjectStore(cfg.ObjectStore))
			if err != nil {
				return nil, err
			}
			return archive.New(store), nil
		},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	code := reportqctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func opsURLFromAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid REPORTQ_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
