// Package migrations owns the Postgres schema behind the report job queue.
// Scripts live in sql/ as NNNNNN_name.up.sql and NNNNNN_name.down.sql.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const (
	migrationTable = "reportq_schema_migrations"

	// lockKey is the advisory lock held while a runner inspects or changes
	// the schema, so two reportq-migrate processes never interleave.
	lockKey int64 = 7_301_985_265_114_417

	createTableSQL = `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version    BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	appliedSQL = `SELECT version, applied_at FROM ` + migrationTable
	markSQL    = `INSERT INTO ` + migrationTable + ` (version, name) VALUES ($1, $2)`
	unmarkSQL  = `DELETE FROM ` + migrationTable + ` WHERE version = $1`
	lockSQL    = `SELECT pg_advisory_lock($1)`
	unlockSQL  = `SELECT pg_advisory_unlock($1)`
)

var scriptName = regexp.MustCompile(`^([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

func NewRunnerFS(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys}
}

type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	s, err := r.begin(ctx, db)
	if err != nil {
		return 0, err
	}
	defer s.end(ctx)

	count := 0
	for _, m := range s.plan {
		if _, done := s.applied[m.Version]; done {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		if err := s.step(ctx, m.Up, markSQL, m.Version, m.Name); err != nil {
			return count, fmt.Errorf("apply migration %d_%s: %w", m.Version, m.Name, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	s, err := r.begin(ctx, db)
	if err != nil {
		return 0, err
	}
	defer s.end(ctx)

	byVersion := make(map[int64]migration, len(s.plan))
	for _, m := range s.plan {
		byVersion[m.Version] = m
	}
	versions := make([]int64, 0, len(s.applied))
	for version := range s.applied {
		versions = append(versions, version)
	}
	slices.SortFunc(versions, func(a, b int64) int { return cmp.Compare(b, a) })

	count := 0
	for _, version := range versions {
		if count >= steps {
			break
		}
		m, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d has no script", version)
		}
		if err := s.step(ctx, m.Down, unmarkSQL, m.Version); err != nil {
			return count, fmt.Errorf("roll back migration %d_%s: %w", m.Version, m.Name, err)
		}
		count++
	}
	return count, nil
}

// Status lists every known migration in version order.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	s, err := r.begin(ctx, db)
	if err != nil {
		return nil, err
	}
	defer s.end(ctx)

	out := make([]Status, 0, len(s.plan))
	for _, m := range s.plan {
		appliedAt, ok := s.applied[m.Version]
		out = append(out, Status{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: appliedAt})
	}
	return out, nil
}

// session is one locked connection plus the state read at its start.
type session struct {
	conn    *sql.Conn
	plan    []migration
	applied map[int64]time.Time
}

func (r *Runner) begin(ctx context.Context, db *sql.DB) (*session, error) {
	plan, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, lockSQL, lockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}

	s := &session{conn: conn, plan: plan}
	if _, err := conn.ExecContext(ctx, createTableSQL); err != nil {
		s.end(ctx)
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	if s.applied, err = readApplied(ctx, conn); err != nil {
		s.end(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) end(ctx context.Context) {
	_, _ = s.conn.ExecContext(context.WithoutCancel(ctx), unlockSQL, lockKey)
	_ = s.conn.Close()
}

// step runs script and the bookkeeping statement in one transaction.
func (s *session) step(ctx context.Context, script, bookkeeping string, args ...any) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func readApplied(ctx context.Context, conn *sql.Conn) (map[int64]time.Time, error) {
	rows, err := conn.QueryContext(ctx, appliedSQL)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]time.Time{}
	for rows.Next() {
		var (
			version   int64
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration scripts: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		parts := scriptName.FindStringSubmatch(path.Base(file))
		if parts == nil {
			return nil, fmt.Errorf("unexpected migration file name %q", path.Base(file))
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version of %q: %w", file, err)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has scripts named %q and %q", version, m.Name, parts[2])
		}
		if parts[3] == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	plan := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" || strings.TrimSpace(m.Down) == "" {
			return nil, fmt.Errorf("migration %d_%s needs both up and down SQL", m.Version, m.Name)
		}
		plan = append(plan, *m)
	}
	slices.SortFunc(plan, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return plan, nil
}
