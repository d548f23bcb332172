package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	buspostgres "github.com/reportq/reportq/internal/bus/postgres"
	"github.com/reportq/reportq/internal/config"
	"github.com/reportq/reportq/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "up, down or status")
	steps := flag.Int("steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline including the connect")
	flag.Parse()

	if err := run(*direction, *steps, *timeout, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reportq-migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(direction string, steps int, timeout time.Duration, out io.Writer) error {
	cfg, err := config.LoadFromEnv("reportq-migrate")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.Transport != config.TransportPostgres {
		return fmt.Errorf("%sQUEUE_TRANSPORT=%s has no schema to migrate", config.EnvPrefix, cfg.Queue.Transport)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	dbCfg := buspostgres.DBConfigFromQueue(cfg.Queue)
	dbCfg.ApplicationName = cfg.Service.Name
	dbCfg.PingTimeout = timeout
	db, err := buspostgres.Open(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch direction {
	case "up":
		n, err := runner.Up(ctx, db, steps)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "applied %d migration(s)\n", n)
	case "down":
		n, err := runner.Down(ctx, db, steps)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
	case "status":
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied " + s.AppliedAt.UTC().Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(out, "%06d_%s %s\n", s.Version, s.Name, state)
		}
	default:
		return fmt.Errorf("unknown direction %q (want up, down or status)", direction)
	}
	return nil
}
