//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestQueueSchemaUpStatusDown(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("REPORTQ_TEST_QUEUE_DSN"))
	if dsn == "" {
		t.Skip("REPORTQ_TEST_QUEUE_DSN is not set")
	}
	db, schema := openScratchSchema(t, dsn)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	runner := NewRunner()

	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied == 0 {
		t.Fatal("Up() applied nothing")
	}
	if !tableInSchema(t, db, schema, "report_job") {
		t.Fatalf("report_job missing from schema %s", schema)
	}

	statuses, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != applied {
		t.Fatalf("len(Status()) = %d, want %d", len(statuses), applied)
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt.IsZero() {
			t.Fatalf("%06d_%s not applied: %+v", s.Version, s.Name, s)
		}
	}

	if n, err := runner.Up(ctx, db, 0); err != nil || n != 0 {
		t.Fatalf("second Up() = %d, %v; want 0, nil", n, err)
	}

	reverted, err := runner.Down(ctx, db, applied)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if reverted != applied {
		t.Fatalf("Down() reverted %d, want %d", reverted, applied)
	}
	if tableInSchema(t, db, schema, "report_job") {
		t.Fatal("report_job still present after Down()")
	}
}

// openScratchSchema creates a throwaway schema and returns a pool whose
// search_path points at it. The schema is dropped when the test ends.
func openScratchSchema(t *testing.T, dsn string) (*sql.DB, string) {
	t.Helper()

	admin, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	schema := fmt.Sprintf("reportq_it_%d", time.Now().UnixNano())
	if _, err := admin.Exec("CREATE SCHEMA " + schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := sql.Open("pgx", u.String())
	if err != nil {
		t.Fatalf("sql.Open(scratch) error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		if _, err := admin.Exec("DROP SCHEMA " + schema + " CASCADE"); err != nil {
			t.Errorf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	return db, schema
}

func tableInSchema(t *testing.T, db *sql.DB, schema, table string) bool {
	t.Helper()
	var found bool
	err := db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`,
		schema, table,
	).Scan(&found)
	if err != nil {
		t.Fatalf("lookup %s.%s: %v", schema, table, err)
	}
	return found
}
