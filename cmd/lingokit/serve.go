package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lingokit/lingokit/internal/analytics"
	"github.com/lingokit/lingokit/internal/api"
	"github.com/lingokit/lingokit/internal/archive"
	"github.com/lingokit/lingokit/internal/config"
	"github.com/lingokit/lingokit/internal/ingest"
	"github.com/lingokit/lingokit/internal/llm/provider"
	"github.com/lingokit/lingokit/internal/observability"
	"github.com/lingokit/lingokit/internal/tutor"
	"github.com/lingokit/lingokit/pkg/embeddings"
	metrics "github.com/lingokit/lingokit/pkg/observability"
	"github.com/lingokit/lingokit/pkg/session"
	"github.com/lingokit/lingokit/pkg/vectorstore"
)

type ServeFlags struct {
	ConfigFile string
	EnvFile    string
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{EnvFile: ".env"}
}

func (f *ServeFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ConfigFile, "config", f.ConfigFile, "Path to a YAML config file (optional, env overrides)")
	flagSet.StringVar(&f.EnvFile, "env-file", f.EnvFile, "Path to a dotenv file loaded before reading config")
}

func NewServeCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tutoring API and ops servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.EnvFile, f.ConfigFile)
			if err != nil {
				return err
			}
			applyLogConfig(cmd, cfg)
			return runServe(cfg)
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}

// loadConfig preloads the dotenv file, then resolves defaults, YAML,
// and environment in that order.
func loadConfig(envFile, configFile string) (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		log.Info("No .env file found, relying on process environment")
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// applyLogConfig applies the configured log level and format. An
// explicit --log-level flag wins over the config value.
func applyLogConfig(cmd *cobra.Command, cfg *config.Config) {
	if !cmd.Flags().Changed("log-level") && cfg.Log.Level != "" {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetLevel(level)
		} else {
			log.WithError(err).Warn("ignoring invalid LOG_LEVEL")
		}
	}
	if cfg.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func runServe(cfg *config.Config) error {
	log.WithField("version", Version).Info("starting lingokit")

	if err := observability.InitFromEnv(); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("trace exporter shutdown failed")
		}
	}()

	metrics.InitMetrics()
	metrics.SetVersion(Version)
	health := metrics.InitHealthChecker()

	store, err := newSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("connect session store: %w", err)
	}
	defer store.Close()

	arch, err := newArchiveStore(cfg)
	if err != nil {
		return fmt.Errorf("connect archive: %w", err)
	}
	defer arch.Close()

	health.RegisterCheck(metrics.StoreCheck("session_store", store.Ping))
	health.RegisterCheck(metrics.StoreCheck("archive", arch.Ping))

	vstore, err := vectorstore.New(cfg.VectorStoreConfig())
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vstore.Close()

	embedder, err := embeddings.New(cfg.EmbeddingsConfig())
	if err != nil {
		return fmt.Errorf("init embeddings: %w", err)
	}
	defer embedder.Close()

	chain, err := newGenerationChain(cfg)
	if err != nil {
		return err
	}

	manager := tutor.NewManager(store, arch, archive.RatingBounds{
		Min: cfg.Feedback.RatingMin,
		Max: cfg.Feedback.RatingMax,
	})
	searcher := ingest.NewSearcher(vstore, embedder, cfg.Vector.TopK)
	pipeline := ingest.NewPipeline(vstore, embedder, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)

	orchOpts := []tutor.OrchestratorOption{
		tutor.WithGenerationParams(cfg.Generation.Temperature, cfg.Generation.MaxTokens),
	}
	if cfg.PromptsFile != "" {
		prompts, err := tutor.LoadPromptsFile(cfg.PromptsFile)
		if err != nil {
			return fmt.Errorf("load prompts file: %w", err)
		}
		orchOpts = append(orchOpts, tutor.WithPrompts(prompts))
	}
	orchestrator := tutor.NewOrchestrator(manager, searcher, chain, orchOpts...)

	apiServer := api.NewServer(api.Deps{
		Manager:       manager,
		Chat:          orchestrator,
		Pipeline:      pipeline,
		Searcher:      searcher,
		Analytics:     analytics.NewService(arch),
		ChatRateLimit: cfg.Server.ChatRateLimit,
		ChatRateBurst: cfg.Server.ChatRateBurst,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router(),
		// Generation can be slow, so the write timeout is generous.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	opsServer := metrics.NewServer(fmt.Sprintf(":%d", cfg.Server.MetricsPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := tutor.NewReaper(manager, store, cfg.Session.IdleReapThreshold())
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Session.ReaperSchedule, func() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := reaper.Run(rctx); err != nil {
			log.WithError(err).Warn("reaper sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", cfg.Session.ReaperSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", fmt.Sprintf(":%d", cfg.Server.MetricsPort)).Info("ops server listening")
		if err := opsServer.Start(); err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("api server shutdown failed")
		}
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("ops server shutdown failed")
		}
		return nil
	})

	err = g.Wait()
	log.Info("lingokit stopped")
	return err
}

// newSessionStore connects to Redis, or keeps sessions in process
// memory when REDIS_URL is set to "memory".
func newSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.RedisURL == "memory" {
		log.Warn("REDIS_URL=memory: sessions are process-local and lost on restart")
		return session.NewMemoryStore(cfg.Session.TTL()), nil
	}
	return session.NewRedisStore(session.RedisConfig{
		URL:        cfg.Session.RedisURL,
		SessionTTL: cfg.Session.TTL(),
	})
}

// newArchiveStore connects to Postgres, or falls back to a process-local
// archive when DATABASE_URL is unset.
func newArchiveStore(cfg *config.Config) (archive.Store, error) {
	if cfg.Archive.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set: archived sessions are kept in process memory")
		return archive.NewMemory(), nil
	}
	return archive.NewPostgres(cfg.Archive.DatabaseURL)
}

// newGenerationChain builds the provider fallback chain from whichever
// generation credentials are configured.
func newGenerationChain(cfg *config.Config) (*provider.Chain, error) {
	order := cfg.GenerationOrder()
	if len(order) == 0 {
		return nil, errors.New("no generation provider configured: set GOOGLE_API_KEY or OPENROUTER_API_KEY")
	}

	providers := make([]provider.Provider, 0, len(order))
	for _, name := range order {
		p, err := provider.New(name, providerConfig(cfg, name))
		if err != nil {
			return nil, fmt.Errorf("init %s provider: %w", name, err)
		}
		providers = append(providers, provider.WrapProvider(p))
	}
	log.WithField("order", order).Info("generation providers configured")

	opts := []provider.ChainOption{
		provider.WithFallbackHook(metrics.RecordGenerationFallback),
	}
	if cfg.Generation.RateLimit > 0 {
		opts = append(opts, provider.WithRateLimit(cfg.Generation.RateLimit, cfg.Generation.RateBurst))
	}
	return provider.NewChain(providers, opts...)
}

func providerConfig(cfg *config.Config, name string) provider.Config {
	switch name {
	case "gemini":
		return provider.Config{
			APIKey: cfg.Generation.GoogleAPIKey,
			Model:  cfg.Generation.LearnLMModel,
		}
	case "openrouter":
		return provider.Config{
			APIKey:  cfg.Generation.OpenRouterAPIKey,
			Model:   cfg.Generation.OpenRouterModel,
			BaseURL: cfg.Generation.OpenRouterBaseURL,
		}
	default:
		return provider.Config{}
	}
}
