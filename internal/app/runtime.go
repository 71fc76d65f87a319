package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/categorize"
	"horse.fit/newsdesk/internal/cli"
	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/config"
	"horse.fit/newsdesk/internal/db"
	"horse.fit/newsdesk/internal/dedup"
	"horse.fit/newsdesk/internal/interests"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/logging"
	"horse.fit/newsdesk/internal/normalize"
	"horse.fit/newsdesk/internal/pipeline"
	"horse.fit/newsdesk/internal/runlock"
	"horse.fit/newsdesk/internal/search"
	"horse.fit/newsdesk/internal/store"
	"horse.fit/newsdesk/internal/summarize"
)

// runtime is the wired application shared by every command.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	backend store.Backend
	lock    runlock.Locker
	service *pipeline.Service
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

func (r *runtime) Gateway() *store.Gateway {
	return r.service.Gateway()
}

// loadConfig applies the env file and builds the process logger.
func loadConfig(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func connectRuntime(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *runtime, error) {
	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		return nil, nil, nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, rt, nil
}

func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	backend, err := openBackend(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}
	rt.backend = backend
	rt.closers = append(rt.closers, backend.Close)

	lock, closeLock, err := openLock(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.lock = lock
	if closeLock != nil {
		rt.closers = append(rt.closers, closeLock)
	}

	registry := llm.NewRegistryFromConfig(llm.ProviderConfig{
		Default:         cfg.LLMProvider,
		ModelName:       cfg.ModelName,
		OllamaBaseURL:   cfg.OllamaBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	})
	model, err := registry.Model("")
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("resolve language model: %w", err)
	}

	embedder := llm.NewHTTPEmbedder(llm.EmbedOptions{
		Endpoint:       cfg.EmbeddingEndpoint,
		Model:          cfg.EmbeddingModel,
		RequestTimeout: cfg.CollaboratorTimeout,
	})

	collabPolicy := retryPolicy(cfg.CollaboratorTimeout, logger)
	gatewayLogger := logging.Component(logger, "gateway")
	gateway := store.NewGateway(backend, llm.NewCachedEmbedder(embedder, 0), gatewayLogger, store.GatewayOptions{
		MaxK:         cfg.SearchContextMaxK,
		Policy:       collabPolicy,
		SyncInterval: syncInterval(cfg),
	})
	if err := gateway.Refresh(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var provider search.Provider
	if cfg.RequireSearch() == nil {
		tavily, err := search.NewTavilyClient(search.TavilyOptions{
			APIKey:   cfg.TavilyAPIKey,
			Endpoint: cfg.TavilyEndpoint,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		provider = tavily
	}

	rt.service = pipeline.NewService(pipeline.Dependencies{
		Search:     provider,
		Interests:  func() ([]string, error) { return interests.Load(cfg.InterestsFile) },
		Normalizer: normalize.New(logging.Component(logger, "normalize"), normalize.Options{FetchFullText: cfg.FetchFullText}),
		Dedup: dedup.New(embedder, logging.Component(logger, "dedup"), dedup.Options{
			Threshold: cfg.DedupThreshold,
			Policy:    collabPolicy,
		}),
		Categorizer: categorize.New(categorize.NewLLMClassifier(model), logging.Component(logger, "categorize"), categorize.Options{
			Policy:          collabPolicy,
			KeywordFallback: cfg.KeywordFallback,
		}),
		Summarizer: summarize.New(summarize.NewLLMGenerator(model), logging.Component(logger, "summarize"), summarize.Options{
			Policy: collabPolicy,
		}),
		Backend:   backend,
		Rebuilder: store.NewRebuilder(backend, gateway, logging.Component(logger, "rebuild")),
		Gateway:   gateway,
		Lock:      lock,
		Model:     model,
	}, logging.Component(logger, "pipeline"), pipeline.Options{
		Workers: cfg.WorkerCount,
		Plan: search.PlanOptions{
			TopNewsMaxResults:  cfg.TopNewsMaxResults,
			InterestMaxResults: cfg.InterestMaxResults,
		},
		SearchPolicy: retryPolicy(cfg.SearchTimeout, logger),
		AnswerPolicy: collabPolicy,
	})
	return rt, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Debug().Msg("using in-memory store; generations do not survive restarts")
		return store.NewMemoryBackend(), nil
	case config.StoreSQLite:
		backend, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return backend, nil
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func openLock(ctx context.Context, cfg *config.Config) (runlock.Locker, func() error, error) {
	if cfg.RunLock != config.LockRedis {
		return runlock.NewLocal(), nil, nil
	}
	client, err := runlock.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return runlock.NewRedis(client, runlock.DefaultKey, cfg.RunLockTTL), client.Close, nil
}

func retryPolicy(timeout time.Duration, logger zerolog.Logger) collab.Policy {
	return collab.Policy{
		Timeout: timeout,
		Backoff: time.Second,
		OnRetry: func(err error) {
			logger.Debug().Err(err).Msg("collaborator call failed; retrying once")
		},
	}
}

// syncInterval is how often the gateway looks for generations activated by
// other processes. A memory store is private to this process.
func syncInterval(cfg *config.Config) time.Duration {
	if cfg.StoreBackend == config.StoreMemory {
		return -1
	}
	return cfg.StoreSyncInterval
}
