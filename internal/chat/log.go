// Package chat holds the client-side conversation state: the chat log shown
// to the user, transient status banners, and the chat and document workflows
// that drive the backend's REST API.
package chat

import (
	"slices"
	"sync"
	"time"
)

// Role identifies who produced a log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Entry is one permanent line of the chat log.
type Entry struct {
	Role Role
	Text string

	// Session is the id of the voice session that was active when the entry
	// was appended, or empty.
	Session string

	Time time.Time
}

// ChangeKind says what a [Change] did to the log.
type ChangeKind int

const (
	// ChangeAppend: Entry was appended.
	ChangeAppend ChangeKind = iota
	// ChangeLive: the live placeholder of Entry.Role now reads Entry.Text.
	// Empty text means the placeholder was removed.
	ChangeLive
	// ChangeClear: every entry and placeholder was removed.
	ChangeClear
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind  ChangeKind
	Entry Entry
}

// Log is the append-only, wholesale-clearable conversation shown to the user,
// plus one live placeholder per role for utterances still being transcribed.
// It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	live    map[Role]string
	session string
	subs    []func(Change)
	now     func() time.Time

	// pending holds changes in mutation order until a notifier delivers
	// them; notifyMu serialises delivery.
	pending  []Change
	notifyMu sync.Mutex
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{live: make(map[Role]string), now: time.Now}
}

// Subscribe registers fn for every subsequent change. Callbacks run on a
// mutating goroutine, outside the log's lock, one at a time and in the order
// of the mutations. They must not mutate the log.
func (l *Log) Subscribe(fn func(Change)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

// SetSession stamps subsequently appended entries with id. An empty id ends
// the stamping.
func (l *Log) SetSession(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = id
}

// EndSession ends the stamping and removes the live placeholders, but only
// while id is still the current session. It reports whether it did.
func (l *Log) EndSession(id string) bool {
	l.mu.Lock()
	if l.session != id {
		l.mu.Unlock()
		return false
	}
	l.session = ""
	for r := range l.live {
		l.pending = append(l.pending, Change{Kind: ChangeLive, Entry: Entry{Role: r}})
	}
	clear(l.live)
	l.mu.Unlock()
	l.flush()
	return true
}

// Append adds a permanent entry.
func (l *Log) Append(role Role, text string) {
	l.mu.Lock()
	e := l.appendLocked(role, text)
	l.pending = append(l.pending, Change{Kind: ChangeAppend, Entry: e})
	l.mu.Unlock()
	l.flush()
}

// Finalize removes the live placeholder for role and appends text as a
// permanent entry.
func (l *Log) Finalize(role Role, text string) {
	l.mu.Lock()
	l.finalizeLocked(l.session, role, text)
	l.mu.Unlock()
	l.flush()
}

// FinalizeIn is Finalize with the entry stamped with session instead of the
// current session.
func (l *Log) FinalizeIn(session string, role Role, text string) {
	l.mu.Lock()
	l.finalizeLocked(session, role, text)
	l.mu.Unlock()
	l.flush()
}

func (l *Log) finalizeLocked(session string, role Role, text string) {
	if _, ok := l.live[role]; ok {
		delete(l.live, role)
		l.pending = append(l.pending, Change{Kind: ChangeLive, Entry: Entry{Role: role}})
	}
	e := Entry{Role: role, Text: text, Session: session, Time: l.now()}
	l.entries = append(l.entries, e)
	l.pending = append(l.pending, Change{Kind: ChangeAppend, Entry: e})
}

// SetLive replaces the placeholder for role. Empty text removes it.
func (l *Log) SetLive(role Role, text string) {
	l.mu.Lock()
	if text == "" {
		delete(l.live, role)
	} else {
		l.live[role] = text
	}
	l.pending = append(l.pending, Change{Kind: ChangeLive, Entry: Entry{Role: role, Text: text}})
	l.mu.Unlock()
	l.flush()
}

// ClearLive removes every placeholder.
func (l *Log) ClearLive() {
	l.mu.Lock()
	for r := range l.live {
		l.pending = append(l.pending, Change{Kind: ChangeLive, Entry: Entry{Role: r}})
	}
	clear(l.live)
	l.mu.Unlock()
	l.flush()
}

// Clear removes every entry and placeholder.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	clear(l.live)
	l.pending = append(l.pending, Change{Kind: ChangeClear})
	l.mu.Unlock()
	l.flush()
}

// Entries returns a snapshot of the permanent entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of permanent entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Live returns the current placeholder text for role, or "".
func (l *Log) Live(role Role) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live[role]
}

func (l *Log) appendLocked(role Role, text string) Entry {
	e := Entry{Role: role, Text: text, Session: l.session, Time: l.now()}
	l.entries = append(l.entries, e)
	return e
}

// flush delivers queued changes in the order they were made. A change
// queued while another goroutine is delivering is picked up by whichever
// flush reaches it first.
func (l *Log) flush() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			return
		}
		c := l.pending[0]
		l.pending = l.pending[1:]
		subs := slices.Clone(l.subs)
		l.mu.Unlock()

		for _, fn := range subs {
			fn(c)
		}
	}
}
