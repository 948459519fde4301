package sink

import (
	"fmt"
	"sort"
	"sync"
)

var (
	// globalRegistry is the global sink registry
	globalRegistry = NewRegistry()
)

// Registry manages sink registration and retrieval
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register adds a sink to the global registry
// This is typically called from sink init() functions
func Register(s Sink) {
	globalRegistry.Register(s)
}

// GetRegistry returns the global sink registry
func GetRegistry() *Registry {
	return globalRegistry
}

// Register adds s; registering a name twice panics
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.sinks[name]; exists {
		panic(fmt.Sprintf("sink %s already registered", name))
	}
	r.sinks[name] = s
}

// Get retrieves a sink by name
func (r *Registry) Get(name string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sinks[name]
	return s, exists
}

// All returns all registered sinks sorted by name
func (r *Registry) All() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool {
		return sinks[i].Name() < sinks[j].Name()
	})
	return sinks
}

// Count returns the number of registered sinks
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sinks)
}
