package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/reportq/reportq/internal/query"
)

// Opener opens DuckDB database files in read-only mode.
type Opener struct {
	PingTimeout time.Duration
}

func NewOpener() *Opener {
	return &Opener{PingTimeout: 5 * time.Second}
}

func (o *Opener) Open(ctx context.Context, location string) (query.Conn, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("database location is required")
	}
	if _, err := os.Stat(location); err != nil {
		return nil, fmt.Errorf("stat database %q: %w", location, err)
	}

	db, err := sql.Open("duckdb", location+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", location, err)
	}

	timeout := o.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb %q: %w", location, err)
	}

	return query.NewSQLConn(db), nil
}

var _ query.Opener = (*Opener)(nil)
