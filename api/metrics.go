package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "chip-todo/api"
	requestSpanName   = "http.request"
	requestMetricsMsg = "http.request.metrics"
)

// RequestMetrics wraps every request in a span and logs one structured line
// with its route, status and duration.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			ctx, span := otel.Tracer(tracerName).Start(req.Context(), requestSpanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo render the error now so the status is known.
				c.Error(err)
			}
			status := c.Response().Status

			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			if err != nil {
				span.RecordError(err)
			}

			if logger != nil {
				severity, number := severityForStatus(status, err)
				fields := log.Fields{
					"route":           route,
					"method":          req.Method,
					"status":          status,
					"total_ms":        durationToMillis(time.Since(start)),
					"severity_text":   severity,
					"severity_number": number,
				}
				if sc := span.SpanContext(); sc.HasTraceID() {
					fields["trace_id"] = sc.TraceID().String()
				}
				if err != nil {
					fields["error"] = err.Error()
				}
				entry := logger.WithFields(fields)
				switch severity {
				case "ERROR":
					entry.Error(requestMetricsMsg)
				case "WARN":
					entry.Warn(requestMetricsMsg)
				default:
					entry.Info(requestMetricsMsg)
				}
			}
			return err
		}
	}
}

// severityForStatus maps a response onto OpenTelemetry log severities.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
