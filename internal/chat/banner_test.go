package chat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBanner_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	n := NewNotifier(20*time.Millisecond, time.Hour)
	n.Success("saved")
	if len(n.Active()) != 1 {
		t.Fatal("banner not shown")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(n.Active()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("banner never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBanner_DisposeIsIdempotent(t *testing.T) {
	t.Parallel()

	n := NewNotifier(time.Hour, time.Hour)
	var changes atomic.Int32
	n.Subscribe(func() { changes.Add(1) })

	b := n.Error("boom")
	keep := n.Success("still here")
	b.Dispose()
	b.Dispose()

	active := n.Active()
	if len(active) != 1 || active[0] != keep {
		t.Errorf("active = %v", active)
	}
	// One change for each show, one for the removal.
	if got := changes.Load(); got != 3 {
		t.Errorf("changes = %d, want 3", got)
	}
}

func TestBanner_ClearThenTimer(t *testing.T) {
	t.Parallel()

	n := NewNotifier(10*time.Millisecond, 10*time.Millisecond)
	b := n.Success("a")
	n.Error("b")
	n.Clear()
	if len(n.Active()) != 0 {
		t.Fatal("Clear left banners")
	}

	// The stopped timer firing late, or a second dispose, must not panic or
	// remove anything else.
	time.Sleep(30 * time.Millisecond)
	b.Dispose()
	if b.ID == "" || b.Level != LevelSuccess {
		t.Errorf("banner = %+v", b)
	}
}

func TestNewNotifier_Defaults(t *testing.T) {
	t.Parallel()

	n := NewNotifier(0, -1)
	if n.successTTL != DefaultSuccessTTL || n.errorTTL != DefaultErrorTTL {
		t.Errorf("ttl = %v/%v", n.successTTL, n.errorTTL)
	}
}
