// Package consumer runs the claim, handle, settle loop against a JobBus.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/reportq/reportq/internal/bus"
	"github.com/reportq/reportq/internal/observability"
)

const settleTimeout = 10 * time.Second

type Handler interface {
	Handle(ctx context.Context, delivery bus.Delivery) error
}

type HandlerFunc func(ctx context.Context, delivery bus.Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, delivery bus.Delivery) error {
	return f(ctx, delivery)
}

type Config struct {
	Queue        string
	ConsumerID   string
	ClaimLimit   int
	PollInterval time.Duration
}

// Service processes one delivery at a time: the job, its connection close and
// its ack or nack all finish before the next claim.
type Service struct {
	Bus     bus.JobBus
	Handler Handler
	Config  Config
	Logger  *slog.Logger
}

// Run polls until ctx is cancelled. Transport and handler failures are logged
// and never stop the loop. After a cycle that handled work it polls again
// straight away.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Bus == nil || s.Handler == nil {
		return fmt.Errorf("consumer requires a bus and a handler")
	}
	s.Logger.InfoContext(ctx, "consumer started",
		slog.String("queue", s.Config.Queue),
		slog.String("consumer_id", s.Config.ConsumerID),
	)

	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		handled, err := s.ProcessOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.Logger.ErrorContext(ctx, "consumer cycle failed", slog.Any("error", err))
		}
		if ctx.Err() != nil {
			s.Logger.InfoContext(context.WithoutCancel(ctx), "consumer stopped")
			return nil
		}
		if handled > 0 && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			s.Logger.InfoContext(context.WithoutCancel(ctx), "consumer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce claims up to ClaimLimit deliveries and settles each of them.
// It returns how many deliveries were handled.
func (s *Service) ProcessOnce(ctx context.Context) (int, error) {
	s.ensureDefaults()
	deliveries, err := s.Bus.Claim(ctx, s.Config.Queue, s.Config.ConsumerID, s.Config.ClaimLimit)
	if err != nil {
		return 0, fmt.Errorf("claim from %q: %w", s.Config.Queue, err)
	}

	handled := 0
	for _, delivery := range deliveries {
		handleErr := s.handle(ctx, delivery)

		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		if handleErr == nil {
			err = s.Bus.Ack(settleCtx, delivery.ID)
		} else {
			err = s.Bus.Nack(settleCtx, delivery.ID, handleErr.Error())
		}
		cancel()
		handled++
		if err != nil {
			return handled, fmt.Errorf("settle delivery %s: %w", delivery.ID, err)
		}
	}
	return handled, nil
}

func (s *Service) handle(ctx context.Context, delivery bus.Delivery) (err error) {
	ctx = observability.ContextWithDeliveryID(ctx, delivery.ID)
	defer func() {
		if recovered := recover(); recovered != nil {
			s.Logger.ErrorContext(ctx, "report handler panicked",
				slog.Any("panic", recovered),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return s.Handler.Handle(ctx, delivery)
}

func (s *Service) ensureDefaults() {
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Config.Queue == "" {
		s.Config.Queue = "q1"
	}
	if s.Config.ConsumerID == "" {
		s.Config.ConsumerID = "reportq-consumer"
	}
	if s.Config.ClaimLimit <= 0 {
		s.Config.ClaimLimit = 1
	}
	if s.Config.PollInterval <= 0 {
		s.Config.PollInterval = 500 * time.Millisecond
	}
}
