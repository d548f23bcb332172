// Package dispatch turns one queue delivery into one report run.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/reportq/reportq/internal/bus"
	"github.com/reportq/reportq/internal/job"
	"github.com/reportq/reportq/internal/observability"
	"github.com/reportq/reportq/internal/report"
	"github.com/reportq/reportq/internal/runner"
	"github.com/reportq/reportq/internal/storage"
)

type JobRunner interface {
	Run(ctx context.Context, location string, renderer report.Renderer, sink io.Writer) (runner.Summary, error)
}

type Archiver interface {
	Archive(ctx context.Context, deliveryID string, format report.Format, body []byte) (storage.ObjectInfo, error)
}

// Service handles deliveries one at a time. Output receives the rendered
// report; Archiver is optional.
type Service struct {
	Runner   JobRunner
	Output   io.Writer
	Archiver Archiver
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Handle decodes the payload, runs the report and records the outcome. A
// non-nil error tells the caller to nack the delivery; it has already been
// logged and counted.
func (s *Service) Handle(ctx context.Context, delivery bus.Delivery) error {
	s.ensureDefaults()
	if s.Runner == nil {
		return fmt.Errorf("report runner is required")
	}
	start := s.Clock()
	ctx = observability.ContextWithDeliveryID(ctx, delivery.ID)
	logger := s.Logger.With(slog.String("queue", delivery.Queue))

	j, err := job.Decode(delivery.Payload)
	if err != nil {
		logger.ErrorContext(ctx, "report job rejected",
			slog.String("status", observability.JobStatusDecodeError),
			slog.Any("error", err),
		)
		observability.ObserveJob("", observability.JobStatusDecodeError, s.Clock().Sub(start))
		return err
	}
	logger = logger.With(
		slog.String("database", j.Database),
		slog.String("format", string(j.Format)),
	)
	logger.InfoContext(ctx, "report job started")

	sink := s.Output
	var archived *bytes.Buffer
	if s.Archiver != nil {
		archived = &bytes.Buffer{}
		sink = io.MultiWriter(s.Output, archived)
	}

	summary, err := s.Runner.Run(ctx, j.Database, report.SelectRenderer(j.Format), sink)
	if err != nil {
		status := Classify(err)
		logger.ErrorContext(ctx, "report job failed",
			slog.String("status", status),
			slog.Int("queries_completed", summary.Queries),
			slog.Any("error", err),
		)
		observability.ObserveJob(j.Format, status, s.Clock().Sub(start))
		return err
	}

	status := observability.JobStatusDone
	if archived != nil {
		info, err := s.Archiver.Archive(ctx, delivery.ID, j.Format, archived.Bytes())
		if err != nil {
			status = observability.JobStatusArchiveError
			logger.WarnContext(ctx, "report archive failed", slog.Any("error", err))
		} else {
			logger.DebugContext(ctx, "report archived", slog.String("key", info.Key), slog.Int64("size", info.Size))
		}
	}

	elapsed := s.Clock().Sub(start)
	logger.InfoContext(ctx, "report job finished",
		slog.String("status", status),
		slog.Int("queries", summary.Queries),
		slog.Int("rows", summary.Rows),
		slog.Int64("bytes", summary.Bytes),
		slog.String("duration", elapsed.String()),
	)
	observability.ObserveJob(j.Format, status, elapsed)
	return nil
}

// Classify maps a job error onto its metric status label.
func Classify(err error) string {
	var decodeErr *job.DecodeError
	var connErr *runner.ConnectionError
	var queryErr *runner.QueryError
	switch {
	case err == nil:
		return observability.JobStatusDone
	case errors.As(err, &decodeErr):
		return observability.JobStatusDecodeError
	case errors.As(err, &connErr):
		return observability.JobStatusConnectionError
	case errors.As(err, &queryErr):
		return observability.JobStatusQueryError
	default:
		return observability.JobStatusEmitError
	}
}

func (s *Service) ensureDefaults() {
	if s.Output == nil {
		s.Output = io.Discard
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
}
