package transcript

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

type flushed struct {
	role Role
	text string
}

func newRecordingAssembler() (*Assembler, *[]flushed) {
	var out []flushed
	a := NewAssembler(func(role Role, text string) {
		out = append(out, flushed{role: role, text: text})
	})
	return a, &out
}

func TestAssembler_UserFirst(t *testing.T) {
	t.Parallel()

	a, out := newRecordingAssembler()
	if a.SetUser("what is on page 2?") {
		t.Fatal("flushed with only the user side pending")
	}
	if len(*out) != 0 {
		t.Fatalf("got %d entries before pair completed", len(*out))
	}
	if !a.SetAssistant("a table of results") {
		t.Fatal("expected flush once both sides are pending")
	}

	want := []flushed{{RoleUser, "what is on page 2?"}, {RoleAssistant, "a table of results"}}
	if fmt.Sprint(*out) != fmt.Sprint(want) {
		t.Errorf("flushed = %v, want %v", *out, want)
	}
	if u, as := a.Pending(); u || as {
		t.Errorf("Pending() = %v, %v after flush", u, as)
	}
}

func TestAssembler_AssistantFirstStillFlushesUserFirst(t *testing.T) {
	t.Parallel()

	a, out := newRecordingAssembler()
	a.SetAssistant("answer")
	a.SetUser("question")

	if len(*out) != 2 {
		t.Fatalf("got %d entries, want 2", len(*out))
	}
	if (*out)[0].role != RoleUser || (*out)[1].role != RoleAssistant {
		t.Errorf("order = %v", *out)
	}
}

func TestAssembler_EmptyStringsArePresent(t *testing.T) {
	t.Parallel()

	a, out := newRecordingAssembler()
	a.SetUser("")
	a.SetAssistant("")
	if len(*out) != 2 {
		t.Fatalf("got %d entries, want 2", len(*out))
	}
}

func TestAssembler_LaterUtteranceReplacesPending(t *testing.T) {
	t.Parallel()

	a, out := newRecordingAssembler()
	a.SetUser("first")
	a.SetUser("second")
	a.SetAssistant("reply")

	if len(*out) != 2 || (*out)[0].text != "second" {
		t.Errorf("flushed = %v", *out)
	}
}

func TestAssembler_FlushOrphans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		user      *string
		assistant *string
		want      []flushed
	}{
		{name: "nothing pending"},
		{name: "user only", user: ptr("hi"), want: []flushed{{RoleUser, "hi"}}},
		{name: "assistant only", assistant: ptr("bye"), want: []flushed{{RoleAssistant, "bye"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, out := newRecordingAssembler()
			if tt.user != nil {
				a.SetUser(*tt.user)
			}
			if tt.assistant != nil {
				a.SetAssistant(*tt.assistant)
			}
			n := a.FlushOrphans()
			if n != len(tt.want) {
				t.Errorf("FlushOrphans() = %d, want %d", n, len(tt.want))
			}
			if fmt.Sprint(*out) != fmt.Sprint(tt.want) {
				t.Errorf("flushed = %v, want %v", *out, tt.want)
			}
			if u, as := a.Pending(); u || as {
				t.Error("slots not cleared")
			}
		})
	}
}

// TestAssembler_RandomSequences checks the pairing invariant over random
// interleavings: entries always come out in user/assistant pairs, user first,
// and the pair count matches.
func TestAssembler_RandomSequences(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for iter := range 200 {
		a, out := newRecordingAssembler()
		steps := rng.IntN(30)
		for i := range steps {
			if rng.IntN(2) == 0 {
				a.SetUser(fmt.Sprintf("u%d", i))
			} else {
				a.SetAssistant(fmt.Sprintf("a%d", i))
			}
		}

		if len(*out)%2 != 0 {
			t.Fatalf("iter %d: odd number of flushed entries %d", iter, len(*out))
		}
		for i := 0; i < len(*out); i += 2 {
			if (*out)[i].role != RoleUser || (*out)[i+1].role != RoleAssistant {
				t.Fatalf("iter %d: pair %d out of order: %v", iter, i/2, (*out)[i:i+2])
			}
		}
		if a.Pairs() != len(*out)/2 {
			t.Fatalf("iter %d: Pairs() = %d, want %d", iter, a.Pairs(), len(*out)/2)
		}
	}
}

func ptr(s string) *string { return &s }
