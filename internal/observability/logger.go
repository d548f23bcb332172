package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/reportq/reportq/internal/config"
)

type ctxKey string

const deliveryIDKey ctxKey = "delivery_id"

// NewLogger builds the process logger. Records logged with a context carrying
// a delivery ID get a delivery_id attribute.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}

	var base slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		base = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(deliveryHandler{Handler: base}).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithDeliveryID(ctx context.Context, deliveryID string) context.Context {
	return context.WithValue(ctx, deliveryIDKey, deliveryID)
}

func DeliveryIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(deliveryIDKey).(string)
	return id
}

type deliveryHandler struct {
	slog.Handler
}

func (h deliveryHandler) Handle(ctx context.Context, record slog.Record) error {
	if id := DeliveryIDFromContext(ctx); id != "" {
		record.AddAttrs(slog.String("delivery_id", id))
	}
	return h.Handler.Handle(ctx, record)
}

func (h deliveryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return deliveryHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h deliveryHandler) WithGroup(name string) slog.Handler {
	return deliveryHandler{Handler: h.Handler.WithGroup(name)}
}
