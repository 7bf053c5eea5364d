package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key the loader reads so ambient environment
// cannot leak into assertions. t.Setenv restores the originals.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "METRICS_PORT",
		"REDIS_URL", "SESSION_TTL_SECONDS", "SESSION_IDLE_REAP", "REAPER_SCHEDULE",
		"DATABASE_URL",
		"VECTOR_PROVIDER", "VECTOR_DIMENSION", "TOP_K_RESULTS",
		"FIRESTORE_PROJECT_ID", "FIRESTORE_COLLECTION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "OPENAI_API_KEY",
		"GOOGLE_API_KEY", "LEARNLM_MODEL",
		"OPENROUTER_API_KEY", "OPENROUTER_MODEL", "OPENROUTER_BASE_URL",
		"PREFER_LEARNLM", "GENERATION_TEMPERATURE", "GENERATION_MAX_TOKENS",
		"PROVIDER_RATE_LIMIT", "PROVIDER_RATE_BURST",
		"CHUNK_SIZE", "CHUNK_OVERLAP",
		"RATING_MIN", "RATING_MAX",
		"LOG_LEVEL", "LOG_FORMAT", "PROMPTS_FILE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.MetricsPort != DefaultMetricsPort {
		t.Errorf("metrics port: got %d, want %d", cfg.Server.MetricsPort, DefaultMetricsPort)
	}
	if cfg.Session.RedisURL != DefaultRedisURL {
		t.Errorf("redis URL: got %s", cfg.Session.RedisURL)
	}
	if cfg.Session.TTL() != time.Hour {
		t.Errorf("TTL: got %s, want 1h", cfg.Session.TTL())
	}
	if cfg.Session.IdleReapThreshold() != 45*time.Minute {
		t.Errorf("idle reap: got %s, want 45m", cfg.Session.IdleReapThreshold())
	}
	if cfg.Vector.Provider != "memory" {
		t.Errorf("vector provider: got %s, want memory", cfg.Vector.Provider)
	}
	if cfg.Vector.Dimension != 1536 || cfg.Vector.TopK != 5 {
		t.Errorf("vector defaults: dim %d topk %d", cfg.Vector.Dimension, cfg.Vector.TopK)
	}
	// No keys present, so the embedding provider derives to hash.
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("embedding provider: got %s, want hash", cfg.Embedding.Provider)
	}
	if !cfg.Generation.PreferLearnLM {
		t.Error("PreferLearnLM should default to true")
	}
	if cfg.Generation.Temperature != DefaultTemperature || cfg.Generation.MaxTokens != DefaultMaxTokens {
		t.Errorf("generation defaults: temp %g tokens %d", cfg.Generation.Temperature, cfg.Generation.MaxTokens)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("chunk defaults: size %d overlap %d", cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Feedback.RatingMin != 1 || cfg.Feedback.RatingMax != 5 {
		t.Errorf("rating defaults: min %d max %d", cfg.Feedback.RatingMin, cfg.Feedback.RatingMax)
	}
}

func TestLoad_FileAndEnvOverlay(t *testing.T) {
	clearEnv(t)

	content := `
server:
  port: 9999
session:
  ttl_seconds: 7200
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	// Environment beats the file.
	t.Setenv("PORT", "7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("env should win over file: got port %d", cfg.Server.Port)
	}
	if cfg.Session.TTLSeconds != 7200 {
		t.Errorf("file value lost: got TTL %d", cfg.Session.TTLSeconds)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("file value lost: got level %s", cfg.Log.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.MetricsPort != DefaultMetricsPort {
		t.Errorf("default lost: metrics port %d", cfg.Server.MetricsPort)
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [[["), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("expected PORT parse error, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"ports collide", func(c *Config) { c.Server.MetricsPort = c.Server.Port }, "differ"},
		{"ttl zero", func(c *Config) { c.Session.TTLSeconds = 0 }, "TTL"},
		{"idle reap unparseable", func(c *Config) { c.Session.IdleReap = "soon" }, "idle reap"},
		{"idle reap exceeds ttl", func(c *Config) { c.Session.IdleReap = "2h" }, "shorter than"},
		{"empty reaper schedule", func(c *Config) { c.Session.ReaperSchedule = "" }, "schedule"},
		{"unknown vector provider", func(c *Config) { c.Vector.Provider = "chroma" }, "vector provider"},
		{"pgvector without dsn", func(c *Config) { c.Vector.Provider = "pgvector" }, "DATABASE_URL"},
		{"firestore without project", func(c *Config) { c.Vector.Provider = "firestore" }, "FIRESTORE_PROJECT_ID"},
		{"openai embeddings without key", func(c *Config) { c.Embedding.Provider = "openai" }, "OPENAI_API_KEY"},
		{"gemini embeddings without key", func(c *Config) { c.Embedding.Provider = "gemini" }, "GOOGLE_API_KEY"},
		{"openrouter key without model", func(c *Config) { c.Generation.OpenRouterAPIKey = "sk-or" }, "OPENROUTER_MODEL"},
		{"temperature out of range", func(c *Config) { c.Generation.Temperature = 2.5 }, "temperature"},
		{"max tokens zero", func(c *Config) { c.Generation.MaxTokens = 0 }, "max tokens"},
		{"negative rate limit", func(c *Config) { c.Generation.RateLimit = -1 }, "rate limit"},
		{"chunk size zero", func(c *Config) { c.Ingest.ChunkSize = 0 }, "chunk size"},
		{"overlap not below size", func(c *Config) { c.Ingest.ChunkOverlap = 500 }, "overlap"},
		{"inverted rating bounds", func(c *Config) { c.Feedback.RatingMin = 5; c.Feedback.RatingMax = 1 }, "rating bounds"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DerivesEmbeddingProvider(t *testing.T) {
	cfg := Default()
	cfg.Embedding.OpenAIAPIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("expected openai, got %s", cfg.Embedding.Provider)
	}

	cfg = Default()
	cfg.Generation.GoogleAPIKey = "g-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Embedding.Provider != "gemini" {
		t.Errorf("expected gemini, got %s", cfg.Embedding.Provider)
	}

	cfg = Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("expected hash, got %s", cfg.Embedding.Provider)
	}
}

func TestValidate_FillsRateBurst(t *testing.T) {
	cfg := Default()
	cfg.Generation.RateLimit = 2.5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Generation.RateBurst != 1 {
		t.Errorf("expected burst filled to 1, got %d", cfg.Generation.RateBurst)
	}
}

func TestGenerationOrder(t *testing.T) {
	tests := []struct {
		name       string
		google     string
		openrouter string
		prefer     bool
		want       []string
	}{
		{"learnlm first", "g-key", "or-key", true, []string{"gemini", "openrouter"}},
		{"openrouter first", "g-key", "or-key", false, []string{"openrouter", "gemini"}},
		{"gemini only", "g-key", "", false, []string{"gemini"}},
		{"openrouter only", "", "or-key", true, []string{"openrouter"}},
		{"no keys", "", "", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Generation.GoogleAPIKey = tt.google
			cfg.Generation.OpenRouterAPIKey = tt.openrouter
			cfg.Generation.PreferLearnLM = tt.prefer

			got := cfg.GenerationOrder()
			if len(got) != len(tt.want) {
				t.Fatalf("order: got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("order[%d]: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVectorStoreConfig(t *testing.T) {
	cfg := Default()
	cfg.Vector.Provider = "pgvector"
	cfg.Archive.DatabaseURL = "postgresql://localhost/lingokit"

	vc := cfg.VectorStoreConfig()
	if vc.Provider != "pgvector" || vc.PgVector == nil {
		t.Fatalf("pgvector config missing: %+v", vc)
	}
	if vc.PgVector.DSN != cfg.Archive.DatabaseURL {
		t.Errorf("DSN: got %s", vc.PgVector.DSN)
	}
	if vc.PgVector.Table != DefaultCollection {
		t.Errorf("table: got %s, want %s", vc.PgVector.Table, DefaultCollection)
	}
	if vc.EmbeddingDimensions != cfg.Vector.Dimension || vc.DefaultTopK != cfg.Vector.TopK {
		t.Errorf("dimensions/topk not carried: %+v", vc)
	}

	cfg = Default()
	cfg.Vector.Provider = "firestore"
	cfg.Vector.FirestoreProjectID = "proj-1"
	vc = cfg.VectorStoreConfig()
	if vc.Firestore == nil || vc.Firestore.ProjectID != "proj-1" || vc.Firestore.Collection != DefaultCollection {
		t.Errorf("firestore config: %+v", vc.Firestore)
	}
}

func TestEmbeddingsConfig(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.OpenAIAPIKey = "sk-test"

	ec := cfg.EmbeddingsConfig()
	if ec.OpenAI == nil || ec.OpenAI.Model != DefaultEmbeddingModel {
		t.Fatalf("openai embedding config: %+v", ec.OpenAI)
	}
	if ec.OpenAI.Dimensions != cfg.Vector.Dimension {
		t.Errorf("dimensions: got %d", ec.OpenAI.Dimensions)
	}

	// The OpenAI default model name must not leak into the Gemini config.
	cfg = Default()
	cfg.Embedding.Provider = "gemini"
	cfg.Generation.GoogleAPIKey = "g-test"
	ec = cfg.EmbeddingsConfig()
	if ec.Gemini == nil {
		t.Fatal("gemini embedding config missing")
	}
	if ec.Gemini.Model != "" {
		t.Errorf("expected empty model so the provider default applies, got %s", ec.Gemini.Model)
	}

	cfg = Default()
	cfg.Embedding.Provider = "hash"
	cfg.Vector.Dimension = 64
	ec = cfg.EmbeddingsConfig()
	if ec.Hash == nil || ec.Hash.Dimensions != 64 {
		t.Errorf("hash embedding config: %+v", ec.Hash)
	}
}
