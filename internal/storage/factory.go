// factory.go maps backend type strings (local, s3) to constructor functions
// and dispatches NewStore calls based on configuration.
package storage

import (
	"fmt"

	"github.com/thirtyx30/thirtyx30/internal/config"
)

// FactoryFunc creates a storage backend from configuration
type FactoryFunc func(*config.Config) (Store, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStore creates a storage backend based on configuration
func NewStore(cfg *config.Config) (Store, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local' or 's3')", cfg.Storage.DefaultBackend)
	}

	return factory(cfg)
}
