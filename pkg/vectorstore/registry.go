package vectorstore

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderFactory is a function that creates a VectorStore from a Config.
type ProviderFactory func(config Config) (VectorStore, error)

var (
	registry = make(map[string]ProviderFactory)
	mu       sync.RWMutex
)

// Register adds a vector store provider to the registry. Providers
// register themselves from an init function:
//
//	func init() {
//	    vectorstore.Register("memory", New)
//	}
func Register(name string, factory ProviderFactory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("vectorstore: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("vectorstore: Register called twice for provider " + name)
	}
	registry[name] = factory
}

// New creates a VectorStore for the provider named in the config.
func New(config Config) (VectorStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.RLock()
	factory, ok := registry[config.Provider]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vector store provider: %s (available: %v)", config.Provider, ListProviders())
	}

	return factory(config)
}

// ListProviders returns the names of all registered providers, sorted.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// IsRegistered checks if a provider is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := registry[name]
	return ok
}

// Unregister removes a provider from the registry. Primarily useful
// for testing.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(registry, name)
}
