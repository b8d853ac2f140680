package chat

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the membership map shared by the accept loop, the sessions,
// and the broadcaster. All mutations are serialized by its mutex; reads hand
// out snapshots so callers never iterate live state.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	active     int
	nextID     uint64
	maxClients int
}

func NewRegistry(maxClients int) *Registry {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		maxClients: maxClients,
	}
}

// Reserve checks capacity and mints the next client id in one critical
// section, so two concurrent accepts can never both squeeze past the cap.
// The reserved slot is counted immediately; Remove gives it back.
func (r *Registry) Reserve() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active >= r.maxClients {
		return "", ErrServerFull
	}
	r.active++
	r.nextID++
	return fmt.Sprintf("Client-%d", r.nextID), nil
}

// Insert registers a session under an id previously returned by Reserve.
func (r *Registry) Insert(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

// Remove deletes the session and releases its capacity slot. It is
// idempotent; only the call that actually removes the entry reports true.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.active--
	return true
}

// Active reports the number of reserved slots, which includes sessions
// still between Reserve and Insert.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SnapshotIDs returns a sorted point-in-time list of registered ids.
func (r *Registry) SnapshotIDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Snapshot returns the current sessions; safe to iterate while other
// goroutines register and remove.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
