package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/reportq/reportq/internal/catalog"
	"github.com/reportq/reportq/internal/observability"
	"github.com/reportq/reportq/internal/query"
	"github.com/reportq/reportq/internal/report"
)

// ConnectionError means the job database could not be opened. Nothing has
// been written to the sink when it is returned.
type ConnectionError struct {
	Location string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %q: %v", e.Location, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError identifies the catalog entry that stopped the job. Index is
// zero-based.
type QueryError struct {
	Index int
	Label string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %d (%s): %v", e.Index+1, e.Label, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Summary struct {
	Queries int
	Rows    int
	Bytes   int64
}

type Runner struct {
	Opener  query.Opener
	Queries []catalog.Entry
	Logger  *slog.Logger
}

func New(opener query.Opener, logger *slog.Logger) *Runner {
	return &Runner{Opener: opener, Queries: catalog.Queries(), Logger: logger}
}

// Run opens location once, then executes, renders and writes every catalog
// entry in order. The first failing entry ends the run. The connection is
// closed exactly once whatever happens.
func (r *Runner) Run(ctx context.Context, location string, renderer report.Renderer, sink io.Writer) (summary Summary, err error) {
	if r.Opener == nil {
		return Summary{}, fmt.Errorf("database opener is required")
	}
	if renderer == nil {
		renderer = report.SelectRenderer(report.DefaultFormat)
	}
	if sink == nil {
		sink = io.Discard
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := r.Opener.Open(ctx, location)
	if err != nil {
		return Summary{}, &ConnectionError{Location: location, Err: err}
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close database %q: %w", location, closeErr)
		}
	}()

	for i, entry := range r.Queries {
		heading := strconv.Itoa(i+1) + ". " + entry.Label + "\n"
		n, err := io.WriteString(sink, heading)
		summary.Bytes += int64(n)
		if err != nil {
			return summary, fmt.Errorf("emit heading for query %d: %w", i+1, err)
		}

		start := time.Now()
		rs, err := conn.Query(ctx, entry.SQL)
		observability.ObserveQuery(err == nil, time.Since(start))
		if err != nil {
			return summary, &QueryError{Index: i, Label: entry.Label, Err: err}
		}

		out := renderer.Render(rs)
		written, err := sink.Write(out)
		summary.Bytes += int64(written)
		if err != nil {
			return summary, fmt.Errorf("emit query %d: %w", i+1, err)
		}
		summary.Queries++
		summary.Rows += len(rs.Rows)
		observability.ObserveRenderedRows(renderer.Format(), len(rs.Rows))

		logger.DebugContext(ctx, "report query rendered",
			slog.Int("query", i+1),
			slog.String("label", entry.Label),
			slog.Int("rows", len(rs.Rows)),
			slog.Int("bytes", written),
			slog.String("duration", time.Since(start).String()),
		)
	}

	return summary, nil
}
