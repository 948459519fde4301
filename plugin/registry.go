package plugin

import (
	"fmt"
	"sort"
	"sync"
)

var (
	// globalRegistry holds every presence factory compiled into the binary
	globalRegistry = NewRegistry()
)

// Factory constructs a fresh presence instance
type Factory func() Presence

// Registry maps manifest names to presence factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the global registry
// This is typically called from presence init() functions
func Register(name string, factory Factory) {
	globalRegistry.Register(name, factory)
}

// GetRegistry returns the global presence registry
func GetRegistry() *Registry {
	return globalRegistry
}

// Register adds a factory under name. Registering the same name twice is
// a programming error.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("presence %s registered with nil factory", name))
	}
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("presence %s already registered", name))
	}

	r.factories[name] = factory
}

// Lookup retrieves a factory by name
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.factories[name]
	return f, exists
}

// Names returns the names of all registered factories, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered factories
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.factories)
}

// Clear removes all factories from the registry
// This is primarily useful for testing
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories = make(map[string]Factory)
}
