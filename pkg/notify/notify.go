// Package notify provides an injected notification sink for user-facing
// messages, replacing ambient global alert state.
package notify

import (
	"sync"
	"time"
)

// Kind classifies a notice for display
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notice is one message queued for the user
type Notice struct {
	Message string    `json:"message"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
}

// Sink accepts notices. Implementations must be safe for concurrent use.
type Sink interface {
	Add(message string, kind Kind)
}

// List is a bounded in-memory Sink scoped to one session
type List struct {
	mu      sync.Mutex
	notices []Notice
	max     int
}

// NewList creates a List that keeps at most max notices, dropping the oldest
func NewList(max int) *List {
	if max <= 0 {
		max = 20
	}
	return &List{max: max}
}

// Add appends a notice
func (l *List) Add(message string, kind Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, Notice{Message: message, Kind: kind, At: time.Now()})
	if len(l.notices) > l.max {
		l.notices = l.notices[len(l.notices)-l.max:]
	}
}

// Snapshot returns a copy of the current notices
func (l *List) Snapshot() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notice, len(l.notices))
	copy(out, l.notices)
	return out
}

// Drain returns the current notices and clears the list
func (l *List) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}
