package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogsAndTracesSuccess(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	e := echo.New()
	e.Use(RequestMetrics(logger))
	e.GET("/api/board", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/board", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Message != requestMetricsMsg {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level %v", entry.Level)
	}
	if entry.Data["route"] != "/api/board" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected fields %#v", entry.Data)
	}
	if entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity %v/%v", entry.Data["severity_text"], entry.Data["severity_number"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != requestSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["http.route"] != "/api/board" {
		t.Fatalf("span route attribute mismatch: %#v", attrs["http.route"])
	}
	if code, ok := attrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", attrs["http.status_code"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}
}

func TestRequestMetricsHandlerErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	e := echo.New()
	e.Use(RequestMetrics(logger))
	e.POST("/api/archive", func(c echo.Context) error {
		return errors.New("backend down")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/archive", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Level != log.ErrorLevel || entry.Data["severity_text"] != "ERROR" {
		t.Fatalf("expected error entry, got %v %#v", entry.Level, entry.Data)
	}
	if entry.Data["error"] != "backend down" {
		t.Fatalf("unexpected error field %#v", entry.Data["error"])
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("expected one errored span, got %#v", spans)
	}
	if len(spans[0].Events) == 0 {
		t.Fatal("expected the error to be recorded on the span")
	}
}

func TestRequestMetricsClientErrorIsWarning(t *testing.T) {
	logger, hook := test.NewNullLogger()
	_, _, restore := setupTestTracer(t)
	defer restore()

	e := echo.New()
	e.Use(RequestMetrics(logger))
	e.DELETE("/api/tasks/:id", func(c echo.Context) error {
		return askConfirmation(c, confirmDeleteTask)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tasks/t_1", nil))
	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Level != log.WarnLevel || entry.Data["severity_number"] != 13 {
		t.Fatalf("expected warning entry, got %v %#v", entry.Level, entry.Data)
	}
	if entry.Data["route"] != "/api/tasks/:id" {
		t.Fatalf("expected route template, got %#v", entry.Data["route"])
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		status int
		err    error
		text   string
		number int
	}{
		{http.StatusOK, nil, "INFO", 9},
		{http.StatusNoContent, nil, "INFO", 9},
		{http.StatusPreconditionRequired, nil, "WARN", 13},
		{http.StatusOK, errors.New("late"), "ERROR", 17},
		{http.StatusServiceUnavailable, nil, "ERROR", 17},
	}
	for _, tt := range tests {
		text, number := severityForStatus(tt.status, tt.err)
		if text != tt.text || number != tt.number {
			t.Fatalf("severityForStatus(%d, %v) = %s/%d, want %s/%d", tt.status, tt.err, text, number, tt.text, tt.number)
		}
	}
	if durationToMillis(-time.Second) != 0 || durationToMillis(1500*time.Microsecond) != 1.5 {
		t.Fatal("unexpected duration conversion")
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func waitForLogEntry(t *testing.T, hook *test.Hook, timeout time.Duration) *log.Entry {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if entry := hook.LastEntry(); entry != nil {
			return entry
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected log entry within %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
