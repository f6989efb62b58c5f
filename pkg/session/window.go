package session

import (
	"strings"
	"time"
)

// DefaultWindowSize matches the process-wide default when the config
// leaves the window size unset.
const DefaultWindowSize = 50

// Turn is one conversational exchange: the user's utterance and the
// assistant's reply.
type Turn struct {
	User  string    `json:"user"`
	Reply string    `json:"reply"`
	At    time.Time `json:"at"`
}

// Window is one user's bounded conversational memory: an ordered
// sequence of turns capped at windowSize, strict FIFO eviction, no
// recency reordering. It performs no locking of its own; mutual
// exclusion per user is the engine's tenant lock.
type Window struct {
	size          int
	turns         []Turn
	summary       string
	retainEvicted bool
	pending       []Turn // evicted turns waiting for the summary tier
}

// NewWindow creates an empty window; non-positive sizes fall back to the
// process default. Evicted turns are discarded, keeping memory bounded
// by size alone.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// NewSummarizedWindow creates a window that retains evicted turns for
// the summary tier. Callers must drain them with TakePending or the
// queue grows without bound.
func NewSummarizedWindow(size int) *Window {
	w := NewWindow(size)
	w.retainEvicted = true
	return w
}

// Append records one turn, evicting the oldest pair when the window is
// full.
func (w *Window) Append(user, reply string) {
	w.turns = append(w.turns, Turn{User: user, Reply: reply, At: time.Now()})
	for len(w.turns) > w.size {
		if w.retainEvicted {
			w.pending = append(w.pending, w.turns[0])
		}
		w.turns = w.turns[1:]
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len reports the number of retained turns.
func (w *Window) Len() int { return len(w.turns) }

// Size reports the configured capacity.
func (w *Window) Size() int { return w.size }

// Clear drops the window, the pending eviction queue and the summary.
func (w *Window) Clear() {
	w.turns = nil
	w.pending = nil
	w.summary = ""
}

// Summary returns the running summary of evicted turns. It is
// best-effort and may lag the raw window by several turns.
func (w *Window) Summary() string { return w.summary }

// SetSummary replaces the running summary.
func (w *Window) SetSummary(s string) { w.summary = s }

// TakePending drains the turns evicted since the last summarization.
func (w *Window) TakePending() []Turn {
	pending := w.pending
	w.pending = nil
	return pending
}

// PendingCount reports how many evicted turns await summarization.
func (w *Window) PendingCount() int { return len(w.pending) }

// Transcript renders the retained turns as prompt context, oldest first.
func (w *Window) Transcript() string {
	if len(w.turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range w.turns {
		b.WriteString("用户: " + turn.User + "\n")
		b.WriteString("小厨神: " + turn.Reply + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
