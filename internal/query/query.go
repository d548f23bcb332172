package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reportq/reportq/internal/report"
)

// Conn is one open connection to a job database. It is owned by a single job
// and is not safe for concurrent use.
type Conn interface {
	Query(ctx context.Context, sqlText string) (report.ResultSet, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, location string) (Conn, error)
}

// SQLConn adapts a *sql.DB limited to one connection.
type SQLConn struct {
	db *sql.DB
}

func NewSQLConn(db *sql.DB) *SQLConn {
	db.SetMaxOpenConns(1)
	return &SQLConn{db: db}
}

func (c *SQLConn) Query(ctx context.Context, sqlText string) (report.ResultSet, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return report.ResultSet{}, fmt.Errorf("sql is required")
	}

	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return report.ResultSet{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return report.ResultSet{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return report.ResultSet{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return report.ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}

	return report.ResultSet{Columns: columns, Rows: resultRows}, nil
}

func (c *SQLConn) Close() error {
	return c.db.Close()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

// Router sends DuckDB files to DuckDB and every other location to SQLite.
type Router struct {
	SQLite Opener
	DuckDB Opener
}

func (r Router) Open(ctx context.Context, location string) (Conn, error) {
	opener := r.SQLite
	if IsDuckDBLocation(location) && r.DuckDB != nil {
		opener = r.DuckDB
	}
	if opener == nil {
		return nil, fmt.Errorf("no database driver configured for %q", location)
	}
	return opener.Open(ctx, location)
}

func IsDuckDBLocation(location string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(location))) {
	case ".duckdb", ".ddb":
		return true
	default:
		return false
	}
}
