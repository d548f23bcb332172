// Package producer publishes report jobs onto a JobBus.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reportq/reportq/internal/bus"
	"github.com/reportq/reportq/internal/job"
	"github.com/reportq/reportq/internal/report"
)

type Service struct {
	Bus    bus.JobBus
	Queue  string
	Logger *slog.Logger
}

// Publish encodes j and sends it to the configured queue. The type is sent
// as given; the consumer decides what an unknown selector means.
func (s *Service) Publish(ctx context.Context, j job.Job) (bus.PublishResult, error) {
	if s.Bus == nil {
		return bus.PublishResult{}, fmt.Errorf("job bus is required")
	}
	queue := strings.TrimSpace(s.Queue)
	if queue == "" {
		return bus.PublishResult{}, fmt.Errorf("queue is required")
	}
	payload, err := job.Encode(j)
	if err != nil {
		return bus.PublishResult{}, fmt.Errorf("encode job: %w", err)
	}

	result, err := s.Bus.Publish(ctx, queue, payload)
	if err != nil {
		return bus.PublishResult{}, fmt.Errorf("publish to %q: %w", queue, err)
	}
	s.logger().InfoContext(ctx, "published report job",
		slog.String("queue", result.Queue),
		slog.String("delivery_id", result.DeliveryID),
		slog.String("database", j.Database),
		slog.String("format", string(j.Format)),
	)
	return result, nil
}

// PublishAll sends cfg.Count copies of the configured job, waiting
// cfg.Interval between them. It stops early when ctx is cancelled.
func (s *Service) PublishAll(ctx context.Context, cfg Config) ([]bus.PublishResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := cfg.Job()
	results := make([]bus.PublishResult, 0, cfg.Count)

	var ticker *time.Ticker
	if cfg.Count > 1 && cfg.Interval > 0 {
		ticker = time.NewTicker(cfg.Interval)
		defer ticker.Stop()
	}

	for i := 0; i < cfg.Count; i++ {
		if i > 0 && ticker != nil {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-ticker.C:
			}
		}
		result, err := s.Publish(ctx, j)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Job builds the payload described by the config. The selector is passed
// through raw so that it reaches the consumer exactly as configured.
func (c Config) Job() job.Job {
	return job.Job{Database: strings.TrimSpace(c.Database), Format: report.Format(strings.TrimSpace(c.Type))}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
