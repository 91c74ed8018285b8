package conversation

import "sync"

// Signal is an edge-triggered flag: producers Set it, the single consumer
// observes it with IsSet and consumes it with Clear. Multiple Sets between
// Clears coalesce into one edge. It is deliberately not a boolean field on
// the chat state so the set/clear ownership stays explicit.
type Signal struct {
	mu  sync.Mutex
	set bool
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Set raises the signal. Idempotent.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set = true
}

// Clear consumes the signal. Idempotent.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set = false
}

// IsSet reports the current edge without consuming it.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.set
}
