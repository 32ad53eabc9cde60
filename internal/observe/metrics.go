// Package observe provides application-wide observability primitives for
// docent: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// instrumentation for both the backend client and the diagnostics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [Setup] so that metrics can be
// scraped from the diagnostics /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all docent metrics.
const meterName = "github.com/MrWong99/docent"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// BackendRequestDuration tracks backend REST call latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...),
	// attribute.String("status", ...)
	BackendRequestDuration metric.Float64Histogram

	// ToolExecutionDuration tracks remote function call latency.
	ToolExecutionDuration metric.Float64Histogram

	// SessionSetupDuration tracks the time from Start to a committed session.
	SessionSetupDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend REST calls by method, path and status.
	BackendRequests metric.Int64Counter

	// BackendErrors counts transport failures by path.
	BackendErrors metric.Int64Counter

	// ToolCalls counts remote function calls by tool and status.
	ToolCalls metric.Int64Counter

	// SessionFailures counts failed session starts by kind.
	SessionFailures metric.Int64Counter

	// TranscriptPairs counts flushed user/assistant transcript pairs.
	TranscriptPairs metric.Int64Counter

	// DataChannelEvents counts inbound data-channel events by type.
	DataChannelEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Diagnostics listener ---

	// HTTPRequestDuration tracks diagnostics request processing time,
	// labelled by route, method and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Backend
// calls that run document analysis can take tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BackendRequestDuration, err = m.Float64Histogram("docent.backend.request.duration",
		metric.WithDescription("Latency of backend REST calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("docent.tool_execution.duration",
		metric.WithDescription("Latency of remote function calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionSetupDuration, err = m.Float64Histogram("docent.session.setup.duration",
		metric.WithDescription("Time to negotiate a realtime session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("docent.backend.requests",
		metric.WithDescription("Total backend REST calls by method, path, and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("docent.backend.errors",
		metric.WithDescription("Total backend transport failures by path."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("docent.tool.calls",
		metric.WithDescription("Total remote function calls by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionFailures, err = m.Int64Counter("docent.session.failures",
		metric.WithDescription("Total failed session starts by kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptPairs, err = m.Int64Counter("docent.transcript.pairs",
		metric.WithDescription("Total flushed user/assistant transcript pairs."),
	); err != nil {
		return nil, err
	}
	if met.DataChannelEvents, err = m.Int64Counter("docent.datachannel.events",
		metric.WithDescription("Total inbound data-channel events by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("docent.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("docent.http.request.duration",
		metric.WithDescription("Diagnostics HTTP request latency by route, method and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest records one backend call with the standard attribute
// set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, method, path, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.BackendRequests.Add(ctx, 1, attrs)
	m.BackendRequestDuration.Record(ctx, seconds, attrs)
}

// RecordBackendError records a transport failure for path.
func (m *Metrics) RecordBackendError(ctx context.Context, path string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordToolCall records a remote function call counter increment and its
// latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolExecutionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordSessionFailure records a failed session start.
func (m *Metrics) RecordSessionFailure(ctx context.Context, kind string) {
	m.SessionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDataChannelEvent records one inbound event by type.
func (m *Metrics) RecordDataChannelEvent(ctx context.Context, eventType string) {
	m.DataChannelEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}
