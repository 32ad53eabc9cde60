// Package transcript pairs completed user and assistant utterances before they
// reach the chat log.
//
// Speech recognition of the user's utterance and generation of the assistant's
// reply complete independently on the server, so their "done" events may arrive
// in either order. The [Assembler] holds at most one pending utterance per role
// and releases both together, user first, so the log always reads as
// question-then-answer.
//
// An Assembler is not safe for concurrent use; it is owned by a single router
// goroutine.
package transcript

// Role identifies the speaker of an utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Sink receives flushed utterances in display order.
type Sink func(role Role, text string)

// Assembler buffers one pending user and one pending assistant utterance.
type Assembler struct {
	sink Sink

	user      *string
	assistant *string

	pairs int
}

// NewAssembler returns an Assembler that flushes into sink.
func NewAssembler(sink Sink) *Assembler {
	return &Assembler{sink: sink}
}

// SetUser records the pending user utterance, replacing any earlier one, and
// flushes if the assistant side is already pending.
func (a *Assembler) SetUser(text string) bool {
	a.user = &text
	return a.tryFlush()
}

// SetAssistant records the pending assistant utterance, replacing any earlier
// one, and flushes if the user side is already pending.
func (a *Assembler) SetAssistant(text string) bool {
	a.assistant = &text
	return a.tryFlush()
}

// Pending reports which slots currently hold an utterance.
func (a *Assembler) Pending() (user, assistant bool) {
	return a.user != nil, a.assistant != nil
}

// Pairs returns the number of pairs flushed so far.
func (a *Assembler) Pairs() int { return a.pairs }

// tryFlush emits both utterances when both slots are set. An empty string is
// a present utterance.
func (a *Assembler) tryFlush() bool {
	if a.user == nil || a.assistant == nil {
		return false
	}
	user, assistant := *a.user, *a.assistant
	a.user, a.assistant = nil, nil
	a.pairs++
	a.sink(RoleUser, user)
	a.sink(RoleAssistant, assistant)
	return true
}

// FlushOrphans emits whatever is pending, user before assistant, and clears
// both slots. Used when the session ends with an incomplete pair. It returns
// the number of utterances emitted.
func (a *Assembler) FlushOrphans() int {
	n := 0
	if a.user != nil {
		a.sink(RoleUser, *a.user)
		n++
	}
	if a.assistant != nil {
		a.sink(RoleAssistant, *a.assistant)
		n++
	}
	a.user, a.assistant = nil, nil
	return n
}

// Reset drops any pending utterances without emitting them.
func (a *Assembler) Reset() {
	a.user, a.assistant = nil, nil
}
