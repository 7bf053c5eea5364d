package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Config carries the settings a provider factory needs. Model and BaseURL
// fall back to provider defaults when empty.
type Config struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Factory constructs a provider from its configuration.
type Factory func(cfg Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a provider factory available under the given name.
// It panics if the name is empty, the factory is nil, or the name is
// already taken; registration happens from init functions where a panic
// is the right failure mode.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if name == "" {
		panic("provider: Register called with empty name")
	}
	if factory == nil {
		panic("provider: Register called with nil factory for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("provider: Register called twice for provider " + name)
	}
	factories[name] = factory
}

// New constructs the named provider.
func New(name string, cfg Config) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not registered (available: %v)", name, List())
	}
	return factory(cfg)
}

// List returns the registered provider names in sorted order.
func List() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a factory exists for the given name.
func IsRegistered(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}
