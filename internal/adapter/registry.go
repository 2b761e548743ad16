package adapter

import (
	"context"
	"sync"
)

// Registry maps adapter names to runtimes. Populated at startup; read-only
// afterwards.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runtimes: make(map[string]*Runtime)}
}

// Register installs a runtime under its configured name.
func (r *Registry) Register(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the name, or nil.
func (r *Registry) Get(name string) *Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runtimes[name]
}

// Names lists the registered adapter names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		names = append(names, name)
	}
	return names
}

// Healths snapshots every adapter's health.
func (r *Registry) Healths(ctx context.Context) map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.runtimes))
	for name, rt := range r.runtimes {
		out[name] = rt.Health(ctx)
	}
	return out
}
