// Package registry maps flow names to the Flow implementations that can
// run them. It is the one place the executor looks up "what does this
// submission actually run."
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/flowengine/internal/domain"
	"github.com/shaiso/flowengine/internal/flow"
)

// Registry is a concurrency-safe map from flow name to Flow. Safe for
// concurrent Register/Get calls.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]flow.Flow
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		flows: make(map[string]flow.Flow),
	}
}

// Register adds f under f.Name(), overwriting any previous entry with
// the same name.
func (r *Registry) Register(f flow.Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[f.Name()] = f
}

// Get returns the Flow registered under name, or domain.ErrUnknownFlow.
func (r *Registry) Get(name string) (flow.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFlow, name)
	}
	return f, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flows[name]
	return ok
}

// Names returns every registered flow name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.flows))
	for n := range r.flows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered flows.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, name)
}
