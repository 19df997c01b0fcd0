package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/config"
	"github.com/zen-systems/nexus/pkg/conversation"
	"github.com/zen-systems/nexus/pkg/conversation/postgres"
	"github.com/zen-systems/nexus/pkg/credits"
	"github.com/zen-systems/nexus/pkg/logging"
	"github.com/zen-systems/nexus/pkg/orchestrator"
	"github.com/zen-systems/nexus/pkg/recorder"
	"github.com/zen-systems/nexus/pkg/registry"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	repo     conversation.Repository
	credits  *credits.Client
	recorder *recorder.Recorder
	orch     *orchestrator.Orchestrator

	closers []func() error
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: registry.Default()}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.openRepository(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Credits.Enabled() {
		a.credits, err = credits.New(credits.Config{
			BaseURL:      cfg.Credits.BaseURL,
			ServiceToken: cfg.Credits.ServiceToken,
			Timeout:      msDuration(cfg.Credits.TimeoutMs),
			Simulate:     cfg.Credits.Simulate,
		}, credits.WithLogger(logger.Named("credits")))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create credits client: %w", err)
		}
	}

	recOpts := []recorder.Option{
		recorder.WithLogger(logger.Named("recorder")),
		recorder.WithTimeout(cfg.Engine.Recorder.Timeout()),
		recorder.WithErrorBuffer(cfg.Engine.Recorder.ErrorBuffer),
	}
	if a.credits != nil {
		recOpts = append(recOpts, recorder.WithDebiter(a.credits))
	}
	a.recorder = recorder.New(a.repo, recOpts...)

	adapters, err := createAdapters(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	a.orch, err = orchestrator.New(a.registry, adapters,
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithRecorder(a.recorder),
		orchestrator.WithRetryPolicy(orchestrator.RetryPolicy{
			MaxRetries:  cfg.Engine.Retry.Retries(),
			BaseBackoff: cfg.Engine.Retry.BaseBackoff(),
			MaxBackoff:  cfg.Engine.Retry.MaxBackoff(),
			Jitter:      cfg.Engine.Retry.Jitter,
		}),
		orchestrator.WithTimeouts(cfg.Engine.Timeouts.ByMode()),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openRepository(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.repo = conversation.NewMemoryRepository()
		return nil
	}
	db, err := postgres.Open(ctx, a.cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: msDuration(a.cfg.Database.ConnMaxLifetimeMs),
	}, a.logger.Named("postgres"))
	if err != nil {
		return err
	}
	a.closers = append([]func() error{db.Close}, a.closers...)
	if err := db.InitSchema(ctx); err != nil {
		return err
	}
	a.repo = postgres.NewConversationRepository(db, a.logger.Named("conversations"))
	return nil
}

// drainRecorder waits for pending writes and logs their failures.
func (a *app) drainRecorder() []error {
	a.recorder.Wait()
	var errs []error
	for {
		select {
		case f := <-a.recorder.Errors():
			errs = append(errs, f)
		default:
			return errs
		}
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil && a.logger != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func createAdapters(ctx context.Context, cfg *config.Config) ([]adapter.Adapter, error) {
	if dryRun {
		return []adapter.Adapter{
			adapter.NewMockAdapter(registry.ProviderOpenAI),
			adapter.NewMockAdapter(registry.ProviderAnthropic),
			adapter.NewMockAdapter(registry.ProviderGoogle),
		}, nil
	}

	var adapters []adapter.Adapter

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(ctx, cfg.GoogleAPIKey, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}
