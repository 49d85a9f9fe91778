package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/config"
	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/feedback"
	"github.com/kapu/pitch-coach-go/internal/history"
	"github.com/kapu/pitch-coach-go/internal/metrics"
	"github.com/kapu/pitch-coach-go/internal/orchestrator"
	"github.com/kapu/pitch-coach-go/internal/server"
	"github.com/kapu/pitch-coach-go/internal/service/cache"
	"github.com/kapu/pitch-coach-go/internal/service/database"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/session"
)

// Container bundles the assembled services behind the HTTP server.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Metrics      *metrics.Metrics
	Completion   *llm.Manager
	Orchestrator *orchestrator.Orchestrator
	Feedback     *feedback.Service
	History      *history.Repository

	closers []func()
}

// NewServer wires the HTTP surface onto the container's services.
func (c *Container) NewServer() *server.Server {
	deps := server.Deps{
		Orchestrator: c.Orchestrator,
		Feedback:     c.Feedback,
		Completer:    c.Completion,
		Health:       c.Completion,
	}
	if c.History != nil {
		deps.History = c.History
	}
	return server.New(server.Config{
		Addr:           c.Config.Server.Addr,
		GinMode:        c.Config.Server.GinMode,
		AllowedOrigins: c.Config.Server.AllowedOrigins,
	}, deps, c.Logger)
}

// Close drains pending reports and releases infrastructure in reverse order.
func (c *Container) Close() {
	if c.Orchestrator != nil {
		c.Orchestrator.Wait()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles all infrastructure services. On error everything opened so
// far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger, Metrics: metrics.Default()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Session storage
	var (
		store  session.Store
		locker session.Locker
	)
	if cfg.Redis.Enabled {
		cacheSvc, cacheErr := cache.NewCacheService(ctx, cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			return nil, fmt.Errorf("failed to create cache service: %w", cacheErr)
		}
		c.closers = append(c.closers, func() {
			_ = cacheSvc.Close()
		})
		store = session.NewRedisStore(cacheSvc, constants.SessionConfig.KeyPrefix, cfg.Session.TTL)
		locker = session.NewRedisLocker(cacheSvc, constants.SessionConfig.BusyKeyPrefix, constants.SessionConfig.BusyTTL)
	} else {
		store = session.NewMemoryStore(cfg.Session.CacheSize, cfg.Session.TTL)
		locker = session.NewMemoryLocker()
		logger.Info("Using in-memory session store", zap.Int("capacity", cfg.Session.CacheSize))
	}

	// Pitch history
	repo, closeHistory, err := OpenHistory(ctx, cfg.History, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeHistory)
	c.History = repo

	// Completion chain
	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Completion, err = llm.NewManager(logger, providers,
		llm.WithMaxConcurrent(int64(cfg.LLM.MaxConcurrent)),
		llm.WithMetrics(c.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion manager: %w", err)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithMetrics(c.Metrics)}
	feedbackOpts := []feedback.Option{feedback.WithMetrics(c.Metrics)}
	if repo != nil {
		orchOpts = append(orchOpts, orchestrator.WithHistory(repo))
		feedbackOpts = append(feedbackOpts, feedback.WithRecorder(repo))
	}

	c.Orchestrator = orchestrator.New(store, locker, c.Completion, logger, orchOpts...)
	c.Feedback = feedback.NewService(c.Completion, logger, feedbackOpts...)

	logger.Info("Services assembled",
		zap.Strings("providers", c.Completion.Status().Providers),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("history", cfg.History.Driver),
	)
	return c, nil
}

// OpenHistory connects the configured history backend and migrates it. The
// repository is nil when history is disabled.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (*history.Repository, func(), error) {
	var (
		svc *database.Service
		err error
	)
	switch cfg.Driver {
	case config.HistoryPostgres:
		svc, err = database.OpenPostgres(ctx, database.PostgresConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
	case config.HistorySQLite:
		svc, err = database.OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		logger.Info("Pitch history disabled")
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}

	closeFn := func() {
		_ = svc.Close()
	}
	repo := history.NewRepository(svc, logger)
	if err := repo.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return repo, closeFn, nil
}

func buildProviders(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]llm.Provider, error) {
	names := []string{cfg.LLM.Primary}
	if cfg.LLM.Fallback != "" {
		names = append(names, cfg.LLM.Fallback)
	}

	providers := make([]llm.Provider, 0, len(names))
	for _, name := range names {
		p, err := buildProvider(ctx, name, cfg, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// buildProvider never returns a typed nil inside the interface.
func buildProvider(ctx context.Context, name string, cfg *config.Config, logger *zap.Logger) (llm.Provider, error) {
	sampling := llm.DefaultSampling()
	sampling.Temperature = cfg.OpenAI.Temperature
	sampling.MaxTokens = cfg.OpenAI.MaxTokens

	switch name {
	case config.ProviderOpenAI:
		if p := llm.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, sampling, logger); p != nil {
			return p, nil
		}
	case config.ProviderGemini:
		p, err := llm.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, sampling, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		if p != nil {
			return p, nil
		}
	case config.ProviderAnthropic:
		if p := llm.NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model, sampling, logger); p != nil {
			return p, nil
		}
	case config.ProviderHTTP:
		return llm.NewHTTPCompleter(cfg.Completion.URL, logger), nil
	case config.ProviderCanned:
		return llm.OfflineProvider{}, nil
	}
	return nil, fmt.Errorf("provider %q is not configured", name)
}
