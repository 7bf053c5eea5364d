// Package config loads service configuration from an optional YAML file
// overlaid by environment variables. The environment wins, so container
// deployments can override a checked-in file. Secrets (API keys, DSNs)
// come only from the environment; main preloads .env via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lingokit/lingokit/pkg/embeddings"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

// Defaults applied before the file and environment are read.
const (
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultRedisURL        = "redis://localhost:6379/0"
	DefaultSessionTTL      = 3600 // seconds
	DefaultIdleReap        = "45m"
	DefaultReaperSchedule  = "@every 10m"
	DefaultVectorProvider  = "memory"
	DefaultVectorDimension = 1536
	DefaultTopK            = 5
	DefaultCollection      = "teaching_documents"
	DefaultChunkSize       = 500
	DefaultChunkOverlap    = 50
	DefaultLearnLMModel    = "learnlm-2.0-flash-experimental"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 1000
	DefaultRatingMin       = 1
	DefaultRatingMax       = 5
	DefaultChatRateLimit   = 5.0 // per-client requests per second
	DefaultChatRateBurst   = 10
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Log        LogConfig        `yaml:"log"`

	// PromptsFile optionally overrides the embedded teaching prompts.
	PromptsFile string `yaml:"prompts_file"`
}

// ServerConfig holds the listen ports and the chat endpoint's
// per-client rate limit.
type ServerConfig struct {
	Port          int     `yaml:"port"`
	MetricsPort   int     `yaml:"metrics_port"`
	ChatRateLimit float64 `yaml:"chat_rate_limit"` // requests per second; 0 disables
	ChatRateBurst int     `yaml:"chat_rate_burst"`
}

// SessionConfig holds the Redis session store and reaper settings.
type SessionConfig struct {
	RedisURL       string `yaml:"redis_url"`
	TTLSeconds     int    `yaml:"ttl_seconds"`
	IdleReap       string `yaml:"idle_reap"`       // Go duration, e.g. "45m"
	ReaperSchedule string `yaml:"reaper_schedule"` // robfig/cron spec
}

// TTL returns the session time-to-live.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// IdleReapThreshold returns the parsed idle threshold. Validate
// guarantees the string parses.
func (s SessionConfig) IdleReapThreshold() time.Duration {
	d, _ := time.ParseDuration(s.IdleReap)
	return d
}

// ArchiveConfig holds the Postgres archive settings.
type ArchiveConfig struct {
	DatabaseURL string `yaml:"-"`
}

// VectorConfig holds the vector store settings.
type VectorConfig struct {
	Provider            string `yaml:"provider"` // memory, pgvector, firestore
	Dimension           int    `yaml:"dimension"`
	TopK                int    `yaml:"top_k"`
	FirestoreProjectID  string `yaml:"firestore_project_id"`
	FirestoreCollection string `yaml:"firestore_collection"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects openai, gemini, or hash. When empty it is derived
	// from the available API keys (openai, then gemini, then hash).
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	OpenAIAPIKey string `yaml:"-"`
}

// GenerationConfig holds the language-model provider settings.
type GenerationConfig struct {
	GoogleAPIKey      string  `yaml:"-"`
	LearnLMModel      string  `yaml:"learnlm_model"`
	OpenRouterAPIKey  string  `yaml:"-"`
	OpenRouterModel   string  `yaml:"openrouter_model"`
	OpenRouterBaseURL string  `yaml:"openrouter_base_url"`
	PreferLearnLM     bool    `yaml:"prefer_learnlm"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`

	// Client-side limit across all generation calls. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	RateBurst int     `yaml:"rate_burst"`
}

// IngestConfig holds the document chunking settings.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"` // runes
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// FeedbackConfig holds the experience rating bounds.
type FeedbackConfig struct {
	RatingMin int `yaml:"rating_min"`
	RatingMax int `yaml:"rating_max"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // text or json
}

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          DefaultPort,
			MetricsPort:   DefaultMetricsPort,
			ChatRateLimit: DefaultChatRateLimit,
			ChatRateBurst: DefaultChatRateBurst,
		},
		Session: SessionConfig{
			RedisURL:       DefaultRedisURL,
			TTLSeconds:     DefaultSessionTTL,
			IdleReap:       DefaultIdleReap,
			ReaperSchedule: DefaultReaperSchedule,
		},
		Vector: VectorConfig{
			Provider:            DefaultVectorProvider,
			Dimension:           DefaultVectorDimension,
			TopK:                DefaultTopK,
			FirestoreCollection: DefaultCollection,
		},
		Embedding: EmbeddingConfig{
			Model: DefaultEmbeddingModel,
		},
		Generation: GenerationConfig{
			LearnLMModel:  DefaultLearnLMModel,
			PreferLearnLM: true,
			Temperature:   DefaultTemperature,
			MaxTokens:     DefaultMaxTokens,
		},
		Ingest: IngestConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Feedback: FeedbackConfig{
			RatingMin: DefaultRatingMin,
			RatingMax: DefaultRatingMax,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (when path
// is non-empty), then environment variables, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv() error {
	var err error

	if c.Server.Port, err = envInt("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Server.MetricsPort, err = envInt("METRICS_PORT", c.Server.MetricsPort); err != nil {
		return err
	}
	if c.Server.ChatRateLimit, err = envFloat("CHAT_RATE_LIMIT", c.Server.ChatRateLimit); err != nil {
		return err
	}
	if c.Server.ChatRateBurst, err = envInt("CHAT_RATE_BURST", c.Server.ChatRateBurst); err != nil {
		return err
	}

	c.Session.RedisURL = envString("REDIS_URL", c.Session.RedisURL)
	if c.Session.TTLSeconds, err = envInt("SESSION_TTL_SECONDS", c.Session.TTLSeconds); err != nil {
		return err
	}
	c.Session.IdleReap = envString("SESSION_IDLE_REAP", c.Session.IdleReap)
	c.Session.ReaperSchedule = envString("REAPER_SCHEDULE", c.Session.ReaperSchedule)

	c.Archive.DatabaseURL = envString("DATABASE_URL", c.Archive.DatabaseURL)

	c.Vector.Provider = envString("VECTOR_PROVIDER", c.Vector.Provider)
	if c.Vector.Dimension, err = envInt("VECTOR_DIMENSION", c.Vector.Dimension); err != nil {
		return err
	}
	if c.Vector.TopK, err = envInt("TOP_K_RESULTS", c.Vector.TopK); err != nil {
		return err
	}
	c.Vector.FirestoreProjectID = envString("FIRESTORE_PROJECT_ID", c.Vector.FirestoreProjectID)
	c.Vector.FirestoreCollection = envString("FIRESTORE_COLLECTION", c.Vector.FirestoreCollection)

	c.Embedding.Provider = envString("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envString("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.OpenAIAPIKey = envString("OPENAI_API_KEY", c.Embedding.OpenAIAPIKey)

	c.Generation.GoogleAPIKey = envString("GOOGLE_API_KEY", c.Generation.GoogleAPIKey)
	c.Generation.LearnLMModel = envString("LEARNLM_MODEL", c.Generation.LearnLMModel)
	c.Generation.OpenRouterAPIKey = envString("OPENROUTER_API_KEY", c.Generation.OpenRouterAPIKey)
	c.Generation.OpenRouterModel = envString("OPENROUTER_MODEL", c.Generation.OpenRouterModel)
	c.Generation.OpenRouterBaseURL = envString("OPENROUTER_BASE_URL", c.Generation.OpenRouterBaseURL)
	if c.Generation.PreferLearnLM, err = envBool("PREFER_LEARNLM", c.Generation.PreferLearnLM); err != nil {
		return err
	}
	if c.Generation.Temperature, err = envFloat("GENERATION_TEMPERATURE", c.Generation.Temperature); err != nil {
		return err
	}
	if c.Generation.MaxTokens, err = envInt("GENERATION_MAX_TOKENS", c.Generation.MaxTokens); err != nil {
		return err
	}
	if c.Generation.RateLimit, err = envFloat("PROVIDER_RATE_LIMIT", c.Generation.RateLimit); err != nil {
		return err
	}
	if c.Generation.RateBurst, err = envInt("PROVIDER_RATE_BURST", c.Generation.RateBurst); err != nil {
		return err
	}

	if c.Ingest.ChunkSize, err = envInt("CHUNK_SIZE", c.Ingest.ChunkSize); err != nil {
		return err
	}
	if c.Ingest.ChunkOverlap, err = envInt("CHUNK_OVERLAP", c.Ingest.ChunkOverlap); err != nil {
		return err
	}

	if c.Feedback.RatingMin, err = envInt("RATING_MIN", c.Feedback.RatingMin); err != nil {
		return err
	}
	if c.Feedback.RatingMax, err = envInt("RATING_MAX", c.Feedback.RatingMax); err != nil {
		return err
	}

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
	c.PromptsFile = envString("PROMPTS_FILE", c.PromptsFile)

	return nil
}

// Validate checks the configuration and fills derived defaults. It does
// not require generation API keys; serve checks GenerationOrder itself
// so ingest and repl can run without them.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535, got %d", c.Server.MetricsPort)
	}
	if c.Server.MetricsPort == c.Server.Port {
		return fmt.Errorf("metrics port must differ from the API port")
	}
	if c.Server.ChatRateLimit < 0 {
		return fmt.Errorf("chat rate limit must not be negative, got %g", c.Server.ChatRateLimit)
	}
	if c.Server.ChatRateLimit > 0 && c.Server.ChatRateBurst < 1 {
		c.Server.ChatRateBurst = 1
	}

	if c.Session.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Session.TTLSeconds < 1 {
		return fmt.Errorf("session TTL must be positive, got %d", c.Session.TTLSeconds)
	}
	idle, err := time.ParseDuration(c.Session.IdleReap)
	if err != nil {
		return fmt.Errorf("invalid idle reap threshold %q: %w", c.Session.IdleReap, err)
	}
	if idle <= 0 {
		return fmt.Errorf("idle reap threshold must be positive, got %s", idle)
	}
	if idle >= c.Session.TTL() {
		return fmt.Errorf("idle reap threshold %s must be shorter than the session TTL %s", idle, c.Session.TTL())
	}
	if c.Session.ReaperSchedule == "" {
		return fmt.Errorf("reaper schedule is required")
	}

	switch c.Vector.Provider {
	case "memory":
	case "pgvector":
		if c.Archive.DatabaseURL == "" {
			return fmt.Errorf("pgvector vector provider requires DATABASE_URL")
		}
	case "firestore":
		if c.Vector.FirestoreProjectID == "" {
			return fmt.Errorf("firestore vector provider requires FIRESTORE_PROJECT_ID")
		}
	default:
		return fmt.Errorf("unsupported vector provider: %s", c.Vector.Provider)
	}
	if c.Vector.Dimension < 1 {
		return fmt.Errorf("vector dimension must be positive, got %d", c.Vector.Dimension)
	}
	if c.Vector.TopK < 1 {
		return fmt.Errorf("top-k must be positive, got %d", c.Vector.TopK)
	}

	if c.Embedding.Provider == "" {
		switch {
		case c.Embedding.OpenAIAPIKey != "":
			c.Embedding.Provider = "openai"
		case c.Generation.GoogleAPIKey != "":
			c.Embedding.Provider = "gemini"
		default:
			c.Embedding.Provider = "hash"
		}
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("openai embedding provider requires OPENAI_API_KEY")
		}
	case "gemini":
		if c.Generation.GoogleAPIKey == "" {
			return fmt.Errorf("gemini embedding provider requires GOOGLE_API_KEY")
		}
	case "hash":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Generation.OpenRouterAPIKey != "" && c.Generation.OpenRouterModel == "" {
		return fmt.Errorf("OPENROUTER_MODEL is required when OPENROUTER_API_KEY is set")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}
	if c.Generation.MaxTokens < 1 {
		return fmt.Errorf("generation max tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.RateLimit < 0 {
		return fmt.Errorf("provider rate limit must not be negative, got %g", c.Generation.RateLimit)
	}
	if c.Generation.RateLimit > 0 && c.Generation.RateBurst < 1 {
		c.Generation.RateBurst = 1
	}

	if c.Ingest.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", c.Ingest.ChunkOverlap)
	}

	if c.Feedback.RatingMin < 0 || c.Feedback.RatingMax <= c.Feedback.RatingMin {
		return fmt.Errorf("rating bounds invalid: min %d, max %d", c.Feedback.RatingMin, c.Feedback.RatingMax)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// GenerationOrder returns generation provider names in fallback order,
// limited to providers whose credentials are configured.
func (c *Config) GenerationOrder() []string {
	var order []string
	add := func(name string, configured bool) {
		if configured {
			order = append(order, name)
		}
	}

	if c.Generation.PreferLearnLM {
		add("gemini", c.Generation.GoogleAPIKey != "")
		add("openrouter", c.Generation.OpenRouterAPIKey != "")
	} else {
		add("openrouter", c.Generation.OpenRouterAPIKey != "")
		add("gemini", c.Generation.GoogleAPIKey != "")
	}
	return order
}

// VectorStoreConfig maps the service configuration onto the vector
// store package's config.
func (c *Config) VectorStoreConfig() vectorstore.Config {
	vc := vectorstore.Config{
		Provider:            c.Vector.Provider,
		EmbeddingDimensions: c.Vector.Dimension,
		DefaultTopK:         c.Vector.TopK,
	}
	switch c.Vector.Provider {
	case "pgvector":
		vc.PgVector = &vectorstore.PgVectorConfig{
			DSN:   c.Archive.DatabaseURL,
			Table: DefaultCollection,
		}
	case "firestore":
		vc.Firestore = &vectorstore.FirestoreConfig{
			ProjectID:  c.Vector.FirestoreProjectID,
			Collection: c.Vector.FirestoreCollection,
		}
	}
	return vc
}

// EmbeddingsConfig maps the service configuration onto the embeddings
// package's config.
func (c *Config) EmbeddingsConfig() embeddings.Config {
	ec := embeddings.Config{Provider: c.Embedding.Provider}

	// EMBEDDING_MODEL defaults to the OpenAI model name; other providers
	// fall back to their own defaults unless the operator overrode it.
	model := c.Embedding.Model
	if model == DefaultEmbeddingModel {
		model = ""
	}

	switch c.Embedding.Provider {
	case "openai":
		if model == "" {
			model = DefaultEmbeddingModel
		}
		ec.OpenAI = &embeddings.OpenAIConfig{
			APIKey:     c.Embedding.OpenAIAPIKey,
			Model:      model,
			Dimensions: c.Vector.Dimension,
		}
	case "gemini":
		ec.Gemini = &embeddings.GeminiConfig{
			APIKey:     c.Generation.GoogleAPIKey,
			Model:      model,
			Dimensions: c.Vector.Dimension,
		}
	case "hash":
		ec.Hash = &embeddings.HashConfig{Dimensions: c.Vector.Dimension}
	}
	return ec
}

func envString(key, current string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}

func envInt(key string, current int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, current float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string, current bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
