package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Routes served by the diagnostics listener.
const (
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
	RouteReadyz  = "/readyz"

	// routeOther labels every path the listener does not serve.
	routeOther = "other"
)

// diagnosticsRoute maps a request path to its metric label.
func diagnosticsRoute(path string) string {
	switch path {
	case RouteMetrics, RouteHealthz, RouteReadyz:
		return path
	}
	return routeOther
}

// statusWriter remembers the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// DiagnosticsMiddleware instruments the /metrics, /healthz and /readyz
// listener. Every request lands in [Metrics.HTTPRequestDuration] labelled by
// route, method and status. Health checks run inside a server span that
// continues an incoming traceparent and echo its trace ID as
// X-Correlation-ID. Scrapes of /metrics get no span. A failing /readyz is
// logged at warn level.
func DiagnosticsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := diagnosticsRoute(r.URL.Path)
			ctx := r.Context()

			var span trace.Span
			if route != RouteMetrics {
				ctx = prop.Extract(ctx, propagation.HeaderCarrier(r.Header))
				ctx, span = StartSpan(ctx, "diagnostics "+route,
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(
						semconv.HTTPRequestMethodKey.String(r.Method),
						semconv.HTTPRoute(route),
					),
				)
				defer span.End()
				if cid := CorrelationID(ctx); cid != "" {
					w.Header().Set("X-Correlation-ID", cid)
				}
				r = r.WithContext(ctx)
			}

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			elapsed := time.Since(start)

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.String("method", r.Method),
					attribute.Int("status", sw.status),
				),
			)
			if span != nil {
				span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))
			}

			level := slog.LevelDebug
			if route == RouteReadyz && sw.status != http.StatusOK {
				level = slog.LevelWarn
			}
			Logger(ctx).LogAttrs(ctx, level, "diagnostics request",
				slog.String("route", route),
				slog.String("method", r.Method),
				slog.Int("status", sw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
