package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// roundTripper records metrics and logs for every outgoing backend request.
type roundTripper struct {
	m    *Metrics
	base http.RoundTripper
}

// Transport returns an [http.RoundTripper] that records
// [Metrics.BackendRequests] and [Metrics.BackendRequestDuration] per request,
// counts transport failures in [Metrics.BackendErrors], and logs each call
// with the trace ids of the request context. A nil base uses
// [http.DefaultTransport].
func Transport(m *Metrics, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{m: m, base: base}
}

// RoundTrip implements [http.RoundTripper].
func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.m.RecordBackendError(ctx, req.URL.Path)
		Logger(ctx).LogAttrs(ctx, slog.LevelWarn, "backend request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("duration", duration),
			slog.Any("err", err),
		)
		return nil, err
	}

	t.m.RecordBackendRequest(ctx, req.Method, req.URL.Path, strconv.Itoa(resp.StatusCode), duration.Seconds())
	Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "backend request completed",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	)
	return resp, nil
}

// HTTPClient returns an [http.Client] for backend calls: otelhttp starts a
// client span and injects W3C trace context, then [Transport] records
// metrics. The client has no timeout; callers set one.
func HTTPClient(m *Metrics) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(Transport(m, http.DefaultTransport)),
	}
}
