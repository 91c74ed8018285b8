package actor

// State is an actor's lifecycle phase. States only move forward through the
// enum and Terminated is absorbing.
type State uint8

const (
	// StateInitializing is the phase between construction and
	// registration.
	StateInitializing State = iota

	// StateRunning means the actor is registered and its runner may be
	// driving turns.
	StateRunning

	// StateWaiting means the actor is explicitly blocked on an inbox
	// read.
	StateWaiting

	// StateTerminated is the final, absorbing phase.
	StateTerminated
)

// String returns the lowercase label used in discovery listings and logs.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
