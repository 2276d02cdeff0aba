// registry.go implements Registry, which stores and retrieves connector
// builder functions keyed by Kind.
package provider

import (
	"fmt"
	"sync"
)

// Builder is a function that constructs a Connector
type Builder func(settings *Settings) (Connector, error)

// Registry manages available provider connector implementations
type Registry struct {
	mu       sync.RWMutex
	builders map[Kind]Builder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{builders: make(map[Kind]Builder)}
}

// Register adds a connector builder for a provider kind
func (r *Registry) Register(kind Kind, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = builder
}

// Build creates a connector instance for the given settings
func (r *Registry) Build(settings *Settings) (Connector, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	builder, found := r.builders[settings.Kind]
	r.mu.RUnlock()

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrConnectorUnavailable, settings.Kind)
	}

	return builder(settings)
}

// HasKind checks if a provider kind is registered
func (r *Registry) HasKind(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, found := r.builders[kind]
	return found
}

// Kinds returns all registered provider kinds
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	return kinds
}

// GlobalRegistry is the default connector registry
var GlobalRegistry = NewRegistry()

// RegisterConnector adds a builder to the global registry
func RegisterConnector(kind Kind, builder Builder) {
	GlobalRegistry.Register(kind, builder)
}

// BuildConnector creates a connector using the global registry
func BuildConnector(settings *Settings) (Connector, error) {
	return GlobalRegistry.Build(settings)
}
