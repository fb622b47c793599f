// factory.go implements the storage provider registry and factory, mapping provider
// type strings (local, s3, azure, gcs) to constructor functions and dispatching
// NewProvider calls.
package storage

import (
	"fmt"

	"github.com/proveniq/properties-backend/internal/config"
)

// Factory function type for creating storage providers
type FactoryFunc func(*config.Config) (Provider, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage provider factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewProvider creates a new storage provider based on configuration
func NewProvider(cfg *config.Config) (Provider, error) {
	factory, ok := factories[cfg.Storage.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("unsupported storage provider: %s (must be 'local', 'azure', 's3', or 'gcs')", cfg.Storage.DefaultProvider)
	}

	return factory(cfg)
}
