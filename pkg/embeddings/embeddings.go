// Package embeddings turns text into vectors for similarity search.
// Providers register themselves and are selected through Config.
package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// DefaultDimensions is the embedding size used when a provider config
// does not specify one. It matches text-embedding-3-small's native
// size and is an accepted output dimensionality for Gemini embedding
// models.
const DefaultDimensions = 1536

// EmbeddingService generates text embeddings.
type EmbeddingService interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimension size of the embeddings
	Dimensions() int

	// ModelName returns the name of the embedding model
	ModelName() string

	// Close releases any resources held by the service
	Close() error
}

// Config holds configuration for embedding providers.
type Config struct {
	// Provider selects the embedding service: "openai", "gemini", or "hash"
	Provider string `yaml:"provider" json:"provider"`

	// OpenAI-specific configuration
	OpenAI *OpenAIConfig `yaml:"openai,omitempty" json:"openai,omitempty"`

	// Gemini-specific configuration
	Gemini *GeminiConfig `yaml:"gemini,omitempty" json:"gemini,omitempty"`

	// Hash-specific configuration (deterministic, for tests and dev)
	Hash *HashConfig `yaml:"hash,omitempty" json:"hash,omitempty"`
}

// OpenAIConfig contains OpenAI-compatible embedding settings.
type OpenAIConfig struct {
	// APIKey for authentication
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model selects the embedding model
	// Options: "text-embedding-3-small" (1536 dims), "text-embedding-3-large" (3072 dims)
	Model string `yaml:"model" json:"model"`

	// BaseURL is the API endpoint (default https://api.openai.com/v1).
	// Point this at any OpenAI-compatible embeddings server.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Dimensions reduces the output size (text-embedding-3 models only)
	Dimensions int `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// GeminiConfig contains Gemini embedding settings.
type GeminiConfig struct {
	// APIKey for the Gemini API
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model selects the embedding model (default "gemini-embedding-001")
	Model string `yaml:"model" json:"model"`

	// Dimensions sets the output dimensionality (default 1536)
	Dimensions int `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// HashConfig contains settings for the deterministic hash embedder.
type HashConfig struct {
	// Dimensions sets the output size (default 1536)
	Dimensions int `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider must be specified")
	}

	switch c.Provider {
	case "openai":
		if c.OpenAI == nil {
			return fmt.Errorf("openai configuration is required when provider is 'openai'")
		}
		return c.OpenAI.Validate()
	case "gemini":
		if c.Gemini == nil {
			return fmt.Errorf("gemini configuration is required when provider is 'gemini'")
		}
		return c.Gemini.Validate()
	case "hash":
		if c.Hash == nil {
			c.Hash = &HashConfig{}
		}
		return c.Hash.Validate()
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
}

// Validate checks OpenAI configuration.
func (oc *OpenAIConfig) Validate() error {
	if oc.APIKey == "" {
		return fmt.Errorf("openai api_key is required")
	}
	if oc.Model == "" {
		oc.Model = "text-embedding-3-small"
	}
	if oc.Dimensions == 0 {
		oc.Dimensions = DefaultDimensions
	}
	return nil
}

// Validate checks Gemini configuration.
func (gc *GeminiConfig) Validate() error {
	if gc.APIKey == "" {
		return fmt.Errorf("gemini api_key is required")
	}
	if gc.Model == "" {
		gc.Model = "gemini-embedding-001"
	}
	if gc.Dimensions == 0 {
		gc.Dimensions = DefaultDimensions
	}
	return nil
}

// Validate checks hash embedder configuration.
func (hc *HashConfig) Validate() error {
	if hc.Dimensions == 0 {
		hc.Dimensions = DefaultDimensions
	}
	if hc.Dimensions < 1 {
		return fmt.Errorf("hash dimensions must be positive, got %d", hc.Dimensions)
	}
	return nil
}

// ProviderFactory is a function that creates an EmbeddingService from a Config.
type ProviderFactory func(config Config) (EmbeddingService, error)

var (
	registry = make(map[string]ProviderFactory)
	mu       sync.RWMutex
)

// Register adds an embedding provider to the registry.
func Register(name string, factory ProviderFactory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("embeddings: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("embeddings: Register called twice for provider " + name)
	}
	registry[name] = factory
}

// New creates an EmbeddingService for the provider named in the config.
func New(config Config) (EmbeddingService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.RLock()
	factory, ok := registry[config.Provider]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s (available: %v)", config.Provider, ListProviders())
	}

	return factory(config)
}

// ListProviders returns the names of all registered providers.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()

	providers := make([]string, 0, len(registry))
	for name := range registry {
		providers = append(providers, name)
	}
	return providers
}

// IsRegistered checks if a provider is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := registry[name]
	return ok
}
