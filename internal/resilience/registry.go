package resilience

import (
	"sort"
	"sync"
)

// Well-known upstream names.
const (
	UpstreamRailA     = "rail_a"
	UpstreamRailB     = "rail_b"
	UpstreamRailC     = "rail_c"
	UpstreamDatastore = "datastore"
)

// Registry holds the process-wide set of circuit breakers, one per upstream.
// It is constructed once at startup and injected into every call site, so
// tests can build an isolated registry instead of sharing mutable globals.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Add registers a breaker under its upstream name, replacing any previous one.
func (r *Registry) Add(b *Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[b.Name()] = b
}

// Get returns the breaker for an upstream, or nil when none is registered.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Snapshots returns a stable-ordered view of every breaker for the status
// endpoint.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.breakers[name].Snapshot())
	}
	return out
}
