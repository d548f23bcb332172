package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOpsHandlerHealthz(t *testing.T) {
	h := NewOpsHandler(slog.New(slog.NewJSONHandler(io.Discard, nil)), nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestOpsHandlerHealthzReportsFailure(t *testing.T) {
	h := NewOpsHandler(nil, func(context.Context) error { return errors.New("queue unreachable") })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "queue unreachable") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestOpsHandlerServesMetrics(t *testing.T) {
	ObserveQuery(true, 0)
	h := NewOpsHandler(nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "reportq_queries_total") {
		t.Fatal("expected reportq_queries_total in exposition")
	}
}

func TestOpsHandlerRejectsOtherMethods(t *testing.T) {
	h := NewOpsHandler(nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestOpsHandlerCountsUnknownPathsAsOther(t *testing.T) {
	h := NewOpsHandler(nil, nil)

	before := testutil.ToFloat64(opsRequestsTotal.WithLabelValues(http.MethodGet, "other", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	after := testutil.ToFloat64(opsRequestsTotal.WithLabelValues(http.MethodGet, "other", "404"))

	if after-before != 1 {
		t.Fatalf("request counter delta = %v", after-before)
	}
}

func TestDeliveryIDContextHelpers(t *testing.T) {
	if got := DeliveryIDFromContext(context.Background()); got != "" {
		t.Fatalf("DeliveryIDFromContext() = %q, want empty", got)
	}
	ctx := ContextWithDeliveryID(context.Background(), "42")
	if got := DeliveryIDFromContext(ctx); got != "42" {
		t.Fatalf("DeliveryIDFromContext() = %q", got)
	}
}

func TestOpsHandlerLogsRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := NewOpsHandler(logger, nil)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.Contains(buf.String(), `"msg":"ops_request"`) || !strings.Contains(buf.String(), `"status":200`) {
		t.Fatalf("log output = %q", buf.String())
	}
}
