package actor

import "errors"

var (
	// ErrUnknownActor is returned when a message targets an id the
	// registry has never seen or has cleaned up.
	ErrUnknownActor = errors.New("unknown actor")

	// ErrActorTerminated is returned when a message targets an actor
	// that has already terminated.
	ErrActorTerminated = errors.New("actor is terminated")

	// ErrPrincipalConflict is returned when a second principal spawn is
	// attempted while one is live.
	ErrPrincipalConflict = errors.New("a principal actor already exists")
)
