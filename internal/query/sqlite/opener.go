package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reportq/reportq/internal/query"
)

// Opener opens job databases read-only. A missing file is an open error
// rather than a freshly created empty database.
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
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("stat database %q: %w", location, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("database %q is a directory", location)
	}

	db, err := sql.Open("sqlite3", DSN(location))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", location, err)
	}

	timeout := o.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database %q: %w", location, err)
	}

	return query.NewSQLConn(db), nil
}

// DSN builds a read-only URI filename for location.
func DSN(location string) string {
	u := url.URL{Scheme: "file", Opaque: (&url.URL{Path: location}).EscapedPath()}
	values := url.Values{}
	values.Set("mode", "ro")
	u.RawQuery = values.Encode()
	return u.String()
}

var _ query.Opener = (*Opener)(nil)
