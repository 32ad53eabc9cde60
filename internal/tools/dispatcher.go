package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/realtime"
)

// ErrNoSuchFunction is reported for calls to unregistered names.
var ErrNoSuchFunction = errors.New("tools: function not found")

// notFoundResult is the payload the model receives for unknown names.
var notFoundResult = json.RawMessage(`{"error":"Function not found"}`)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics records every call in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher routes function calls to registered tools. It never fails a
// call: every outcome, including unknown names and handler errors, is
// returned as a JSON object for the model.
type Dispatcher struct {
	tools   map[string]Tool
	defs    []realtime.Tool
	metrics *observe.Metrics
}

// NewDispatcher registers ts in order. Names must be unique and every tool
// must have a handler.
func NewDispatcher(ts []Tool, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{tools: make(map[string]Tool, len(ts))}
	for _, o := range opts {
		o(d)
	}
	for _, t := range ts {
		if t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("tools: tool %q needs a name and a handler", t.Name)
		}
		if _, dup := d.tools[t.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", t.Name)
		}
		def, err := t.Definition()
		if err != nil {
			return nil, err
		}
		d.tools[t.Name] = t
		d.defs = append(d.defs, def)
	}
	return d, nil
}

// Definitions returns the declarations announced in session.update, in
// registration order.
func (d *Dispatcher) Definitions() []realtime.Tool {
	return append([]realtime.Tool(nil), d.defs...)
}

// Call executes name with args and returns the JSON result. Unknown names
// yield {"error":"Function not found"}; handler errors yield
// {"error":"<message>"}.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	ctx, span := observe.StartSpan(ctx, "tool "+name,
		trace.WithAttributes(attribute.String("tool", name)),
	)
	start := time.Now()

	out, err := d.call(ctx, name, args)

	status := "ok"
	if err != nil {
		status = "error"
		out = ErrorResult(err)
		if errors.Is(err, ErrNoSuchFunction) {
			status = "not_found"
			out = notFoundResult
		}
		observe.Logger(ctx).Warn("function call failed", "tool", name, "err", err)
	} else {
		observe.Logger(ctx).Debug("function call completed", "tool", name)
	}
	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, name, status, time.Since(start).Seconds())
	}
	observe.EndSpan(span, err)
	return out
}

func (d *Dispatcher) call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	t, ok := d.tools[name]
	if !ok {
		return nil, ErrNoSuchFunction
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("tools: %s returned invalid JSON", name)
	}
	return out, nil
}

// ErrorResult encodes err as {"error": err.Error()}.
func ErrorResult(err error) json.RawMessage {
	data, mErr := json.Marshal(struct {
		Error string `json:"error"`
	}{err.Error()})
	if mErr != nil {
		slog.Error("tools: encode error result", "err", mErr)
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return data
}
