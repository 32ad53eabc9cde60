package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default banner lifetimes.
const (
	DefaultSuccessTTL = 2 * time.Second
	DefaultErrorTTL   = 5 * time.Second
)

// Level is the severity of a [Banner].
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

// Banner is a transient status message. It removes itself from its
// [Notifier] when its lifetime ends; Dispose may also be called explicitly
// any number of times.
type Banner struct {
	ID    string
	Level Level
	Text  string

	n     *Notifier
	timer *time.Timer
	once  sync.Once
}

// Dispose removes the banner. Only the first call has an effect.
func (b *Banner) Dispose() {
	b.once.Do(func() {
		b.n.mu.Lock()
		t := b.timer
		b.n.mu.Unlock()
		if t != nil {
			t.Stop()
		}
		b.n.remove(b)
	})
}

// Notifier owns the set of visible banners.
type Notifier struct {
	successTTL time.Duration
	errorTTL   time.Duration

	mu      sync.Mutex
	banners []*Banner
	subs    []func()
}

// NewNotifier creates a Notifier. Non-positive lifetimes fall back to
// [DefaultSuccessTTL] and [DefaultErrorTTL].
func NewNotifier(successTTL, errorTTL time.Duration) *Notifier {
	if successTTL <= 0 {
		successTTL = DefaultSuccessTTL
	}
	if errorTTL <= 0 {
		errorTTL = DefaultErrorTTL
	}
	return &Notifier{successTTL: successTTL, errorTTL: errorTTL}
}

// Subscribe registers fn to be called whenever the visible set changes.
func (n *Notifier) Subscribe(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// Success shows a success banner.
func (n *Notifier) Success(text string) *Banner {
	return n.show(LevelSuccess, text, n.successTTL)
}

// Error shows an error banner.
func (n *Notifier) Error(text string) *Banner {
	return n.show(LevelError, text, n.errorTTL)
}

// Active returns the visible banners, oldest first.
func (n *Notifier) Active() []*Banner {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.banners)
}

// Clear disposes every visible banner.
func (n *Notifier) Clear() {
	for _, b := range n.Active() {
		b.Dispose()
	}
}

func (n *Notifier) show(level Level, text string, ttl time.Duration) *Banner {
	b := &Banner{ID: uuid.NewString(), Level: level, Text: text, n: n}
	n.mu.Lock()
	n.banners = append(n.banners, b)
	b.timer = time.AfterFunc(ttl, b.Dispose)
	n.mu.Unlock()
	n.changed()
	return b
}

func (n *Notifier) remove(b *Banner) {
	n.mu.Lock()
	i := slices.Index(n.banners, b)
	if i >= 0 {
		n.banners = slices.Delete(n.banners, i, i+1)
	}
	n.mu.Unlock()
	if i >= 0 {
		n.changed()
	}
}

func (n *Notifier) changed() {
	n.mu.Lock()
	subs := slices.Clone(n.subs)
	n.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
