// Package registry maps logical user identities to their current live
// connection handle. It is the only shared mutable state of the realtime
// subsystem: the session lifecycle writes it, the notification router reads
// it. Entries live in process memory only; a restart loses them and clients
// are expected to re-authenticate.
package registry

import (
	"sync"

	"github.com/roadwatch/backend/internal/domain"
)

// Handle is a live client connection capable of receiving events.
// Implementations must be comparable (pointer types), because Unregister
// compares handles to guard against stale disconnects.
type Handle interface {
	Send(env domain.Envelope) error
}

// Entry is one identity/connection pair.
type Entry struct {
	Identity string
	Handle   Handle
}

// Registry holds at most one handle per identity, last-write-wins.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

func New() *Registry {
	return &Registry{entries: make(map[string]Handle)}
}

// Register upserts the handle for an identity. A later registration for the
// same identity overwrites the earlier handle without closing it.
func (r *Registry) Register(identity string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[identity] = h
}

// Lookup returns the current handle for an identity, if any.
func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[identity]
	return h, ok
}

// Unregister removes the entry only if the stored handle is the given one.
// This keeps a disconnect of an overwritten, stale connection from evicting
// the newer session registered under the same identity.
func (r *Registry) Unregister(identity string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[identity]
	if !ok || current != h {
		return false
	}
	delete(r.entries, identity)
	return true
}

// Entries returns a snapshot of all identity/connection pairs. Iteration
// order is unspecified.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for identity, h := range r.entries {
		out = append(out, Entry{Identity: identity, Handle: h})
	}
	return out
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
