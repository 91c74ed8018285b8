package amygdala

import "time"

// RoundRecord summarizes one completed heartbeat round.
type RoundRecord struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	Turns           int
	DurationSeconds float64
	Alert           bool
	Error           string
	Result          string
}

// Status is a snapshot of the amygdala's observable state.
type Status struct {
	State           string
	RoundsTotal     int
	LastStartedAt   time.Time
	LastCompletedAt time.Time
	LastTurns       int
	LastAlert       string
	LastResult      string
	LastError       string
	TagsPrunedTotal int

	// RoundHistory holds the most recent rounds, oldest first, capped at
	// the history ring size.
	RoundHistory []RoundRecord

	// ActivePatterns is the flashback ring: leading tags of recent
	// high-arousal seeds, oldest first.
	ActivePatterns []string
}

// ring is a bounded FIFO slice: appending past the cap drops the oldest
// entry.
type ring[T any] struct {
	items []T
	cap   int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{cap: capacity}
}

func (r *ring[T]) push(item T) {
	r.items = append(r.items, item)
	if len(r.items) > r.cap {
		r.items = r.items[1:]
	}
}

func (r *ring[T]) snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)

	return out
}
