package actor

import (
	"context"
	"fmt"
	"sync"
)

// Registry owns the set of live actors and is the sole authority for spawn,
// discovery, and termination notification.
type Registry struct {
	mu          sync.Mutex
	actors      map[string]*Actor
	order       []string
	principalID string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actors: make(map[string]*Actor),
	}
}

// Spawn creates a new actor in Running state. A second principal spawn while
// one is live fails with ErrPrincipalConflict.
func (r *Registry) Spawn(cfg Config, spawnedBy string,
	isPrincipal bool) (*Actor, error) {

	cfg.normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if isPrincipal {
		if cur, ok := r.actors[r.principalID]; ok &&
			cur.State() != StateTerminated {

			return nil, fmt.Errorf("%w: %s", ErrPrincipalConflict,
				cur.ID)
		}
	}

	a := newActor(cfg, spawnedBy, isPrincipal, r)
	a.setState(StateRunning)

	r.actors[a.ID] = a
	r.order = append(r.order, a.ID)
	if isPrincipal {
		r.principalID = a.ID
	}

	log.InfoS(context.Background(), "Spawned actor",
		"actor_id", a.ID,
		"actor", cfg.Name,
		"group", cfg.Group,
		"principal", isPrincipal,
		"spawned_by", spawnedBy)

	return a, nil
}

// Get looks up an actor by id.
func (r *Registry) Get(id string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actors[id]

	return a, ok
}

// Principal returns the live principal, if any.
func (r *Registry) Principal() (*Actor, bool) {
	r.mu.Lock()
	a, ok := r.actors[r.principalID]
	r.mu.Unlock()

	if !ok || a.Terminated() {
		return nil, false
	}

	return a, true
}

// Discover returns the public projections of non-terminated actors in the
// given group, in spawn order.
func (r *Registry) Discover(group string) []Info {
	r.mu.Lock()
	ordered := r.orderedLocked()
	r.mu.Unlock()

	var infos []Info
	for _, a := range ordered {
		if a.Config.Group != group || a.Terminated() {
			continue
		}
		infos = append(infos, a.Info())
	}

	return infos
}

// Children returns the non-terminated actors directly spawned by the given
// parent.
func (r *Registry) Children(parentID string) []*Actor {
	r.mu.Lock()
	ordered := r.orderedLocked()
	r.mu.Unlock()

	var children []*Actor
	for _, a := range ordered {
		if a.SpawnedBy != parentID || a.Terminated() {
			continue
		}
		children = append(children, a)
	}

	return children
}

// ActiveCount returns how many actors are not terminated.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	ordered := r.orderedLocked()
	r.mu.Unlock()

	count := 0
	for _, a := range ordered {
		if !a.Terminated() {
			count++
		}
	}

	return count
}

// AllActors returns every registered actor in spawn order, including
// terminated ones that have not been cleaned up.
func (r *Registry) AllActors() []*Actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.orderedLocked()
}

// CleanupTerminated removes terminated actors and returns how many were
// removed. Safe to call concurrently with spawns.
func (r *Registry) CleanupTerminated() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		a, ok := r.actors[id]
		if !ok {
			continue
		}
		if a.State() == StateTerminated {
			delete(r.actors, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	if removed > 0 {
		log.DebugS(context.Background(),
			"Cleaned up terminated actors", "removed", removed)
	}

	return removed
}

// orderedLocked returns the live actor pointers in spawn order. Callers must
// hold r.mu.
func (r *Registry) orderedLocked() []*Actor {
	out := make([]*Actor, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.actors[id]; ok {
			out = append(out, a)
		}
	}

	return out
}

// displayName resolves an actor id to its configured name, falling back to
// the id for unknown senders.
func (r *Registry) displayName(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actors[id]; ok {
		return a.Config.Name
	}

	return id
}

// onActorTerminated delivers the child-completion notification to the
// parent's inbox as an ordinary message, so parents observe completion
// through the same channel as all other communication.
func (r *Registry) onActorTerminated(child *Actor) {
	r.mu.Lock()
	parent, ok := r.actors[child.SpawnedBy]
	r.mu.Unlock()

	if !ok || parent.State() != StateRunning {
		return
	}

	result := child.Result().UnwrapOr("no result")
	if result == "" {
		result = "no result"
	}

	msg := NewMessage(child.ID, parent.ID, fmt.Sprintf(
		"[TERMINATED] %s finished: %s", child.Config.Name, result,
	), "")
	parent.Send(msg)

	log.DebugS(context.Background(), "Notified parent of termination",
		"child", child.ID,
		"parent", parent.ID)
}
