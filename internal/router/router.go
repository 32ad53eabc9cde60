// Package router consumes the realtime data channel of one voice session.
//
// Inbound messages are decoded and handled strictly in arrival order by a
// single goroutine, which owns the transcript [transcript.Assembler]. Function
// calls are executed off that goroutine so a slow upload never stalls
// transcript handling; every call is answered with a function_call_output
// event carrying the original call id.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/internal/transcript"
	"github.com/MrWong99/docent/pkg/realtime"
)

const defaultInboxSize = 64

// itemTypeFunctionCall marks output items that carry a function call rather
// than speech.
const itemTypeFunctionCall = "function_call"

// Channel is the data channel the router is bound to. [rtc.DataChannel]
// satisfies it.
type Channel interface {
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	Send(text string) error
}

// Caller executes remote function calls. [*tools.Dispatcher] satisfies it.
type Caller interface {
	Definitions() []realtime.Tool
	Call(ctx context.Context, name string, args json.RawMessage) json.RawMessage
}

// Sink receives everything the router produces for display.
type Sink interface {
	// Finalize appends a completed utterance to the chat log.
	Finalize(role transcript.Role, text string)

	// Live replaces the in-progress placeholder for role.
	Live(role transcript.Role, text string)

	// RemoteError reports an error event sent by the server.
	RemoteError(message string)
}

// Config tunes a [Router].
type Config struct {
	// InboxSize is the number of undelivered messages buffered before
	// HandleMessage blocks. Default: 64.
	InboxSize int

	// RespondAfterToolCall sends response.create after every function
	// output so the model speaks the result.
	RespondAfterToolCall bool

	// FlushPendingOnStop flushes a lone pending transcript on Close instead
	// of dropping it.
	FlushPendingOnStop bool
}

// Option configures a [Router].
type Option func(*Router)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.log = l
	}
}

// WithMetrics records inbound events and flushed pairs in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router is bound to one data channel for the lifetime of one session.
type Router struct {
	cfg     Config
	ch      Channel
	tools   Caller
	sink    Sink
	log     *slog.Logger
	metrics *observe.Metrics

	// ctx bounds function calls; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	inbox    chan []byte
	stop     chan struct{}
	loopDone chan struct{}
	calls    errgroup.Group

	// Owned by the loop goroutine until loopDone is closed.
	asm  *transcript.Assembler
	live map[transcript.Role]string

	sendMu    sync.Mutex
	closeOnce sync.Once
}

// New binds a Router to ch and starts its loop. ctx bounds the lifetime of
// function calls. Call [Router.Close] to release it.
func New(ctx context.Context, ch Channel, tools Caller, sink Sink, cfg Config, opts ...Option) *Router {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	r := &Router{
		cfg:      cfg,
		ch:       ch,
		tools:    tools,
		sink:     sink,
		log:      slog.Default(),
		inbox:    make(chan []byte, cfg.InboxSize),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
		live:     make(map[transcript.Role]string, 2),
	}
	for _, o := range opts {
		o(r)
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.asm = transcript.NewAssembler(r.finalize)

	ch.OnOpen(func() {
		if err := r.Open(); err != nil {
			r.log.Warn("router: session.update not sent", "err", err)
		}
	})
	ch.OnMessage(r.HandleMessage)

	go r.loop()
	return r
}

// Open announces modalities and tools with a session.update event. It is
// invoked automatically when the channel opens.
func (r *Router) Open() error {
	return r.sendJSON(realtime.NewSessionUpdate(r.tools.Definitions()))
}

// HandleMessage queues one inbound message. It blocks while the inbox is full
// and drops the message once the router is closed.
func (r *Router) HandleMessage(data []byte) {
	msg := append([]byte(nil), data...)
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.inbox <- msg:
	case <-r.stop:
	}
}

// Close stops the loop after handling every queued message, cancels and
// waits for in-flight function calls, then applies the pending-transcript
// policy. Idempotent.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.loopDone
		r.cancel()
		_ = r.calls.Wait()

		if r.cfg.FlushPendingOnStop {
			if n := r.asm.FlushOrphans(); n > 0 {
				r.log.Debug("router: flushed unpaired transcript", "count", n)
			}
		} else {
			r.asm.Reset()
		}
	})
	return nil
}

func (r *Router) loop() {
	defer close(r.loopDone)
	for {
		select {
		case msg := <-r.inbox:
			r.handle(msg)
		case <-r.stop:
			for {
				select {
				case msg := <-r.inbox:
					r.handle(msg)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) handle(data []byte) {
	evt, err := realtime.Decode(data)
	if err != nil {
		r.log.Debug("router: drop malformed message", "err", err)
		return
	}
	if r.metrics != nil {
		r.metrics.RecordDataChannelEvent(r.ctx, evt.Type)
	}

	switch evt.Type {
	case realtime.TypeInputTranscriptionCompleted:
		r.live[transcript.RoleUser] = ""
		r.asm.SetUser(evt.Transcript)

	case realtime.TypeOutputItemDone:
		if evt.Item != nil && evt.Item.Type == itemTypeFunctionCall {
			return
		}
		r.live[transcript.RoleAssistant] = ""
		r.asm.SetAssistant(evt.AssistantTranscript())

	case realtime.TypeInputTranscriptionDelta:
		r.appendLive(transcript.RoleUser, evt.Delta)

	case realtime.TypeOutputTranscriptDelta:
		r.appendLive(transcript.RoleAssistant, evt.Delta)

	case realtime.TypeFunctionCallArgumentsDone:
		r.dispatch(evt.CallID, evt.Name, evt.Arguments)

	case realtime.TypeError:
		msg := evt.ErrorMessage()
		r.log.Warn("router: server error event", "message", msg)
		r.sink.RemoteError(msg)
	}
}

func (r *Router) appendLive(role transcript.Role, delta string) {
	if delta == "" {
		return
	}
	r.live[role] += delta
	r.sink.Live(role, r.live[role])
}

// finalize is the assembler's sink.
func (r *Router) finalize(role transcript.Role, text string) {
	r.sink.Finalize(role, text)
	if role == transcript.RoleAssistant && r.metrics != nil {
		r.metrics.TranscriptPairs.Add(r.ctx, 1)
	}
}

func (r *Router) dispatch(callID, name, args string) {
	log := r.log.With("call_id", callID, "tool", name)
	log.Debug("router: function call")
	r.calls.Go(func() error {
		out := r.tools.Call(r.ctx, name, json.RawMessage(args))
		if err := r.reply(callID, out); err != nil {
			log.Warn("router: function output not sent", "err", err)
		}
		return nil
	})
}

func (r *Router) reply(callID string, out json.RawMessage) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if err := r.sendLocked(realtime.NewFunctionCallOutput(callID, out)); err != nil {
		return err
	}
	if r.cfg.RespondAfterToolCall {
		return r.sendLocked(realtime.ResponseCreate())
	}
	return nil
}

func (r *Router) sendJSON(v any) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return r.sendLocked(v)
}

func (r *Router) sendLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("router: marshal event: %w", err)
	}
	if err := r.ch.Send(string(data)); err != nil {
		return fmt.Errorf("router: send event: %w", err)
	}
	return nil
}
