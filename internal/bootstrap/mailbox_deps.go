// Package bootstrap wires configuration into running components.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpapi "smart_mailbox/adapter/in/http"
	"smart_mailbox/adapter/in/worker"
	"smart_mailbox/adapter/out/messaging"
	"smart_mailbox/adapter/out/mongodb"
	"smart_mailbox/adapter/out/parser"
	"smart_mailbox/adapter/out/persistence"
	"smart_mailbox/adapter/out/realtime"
	"smart_mailbox/config"
	"smart_mailbox/core/agent/llm"
	"smart_mailbox/core/port/out"
	"smart_mailbox/core/service/classification"
	"smart_mailbox/core/service/pipeline"
	"smart_mailbox/core/service/reply"
	"smart_mailbox/core/service/tagcatalog"
	"smart_mailbox/infra/database"
	"smart_mailbox/pkg/logger"
)

type Dependencies struct {
	Config   *config.Config
	Store    out.Store
	Settings *config.AISettingsStore
	Pipeline *pipeline.Service
	Hub      *realtime.Hub

	// Redis is nil unless REDIS_URL is set.
	Redis         *redis.Client
	RedisProgress *messaging.RedisProgress

	Runner *worker.Runner

	log zerolog.Logger
}

// NewDependencies opens storage, loads settings and builds the pipeline.
// The returned cleanup closes everything in reverse order.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config: cfg,
		log:    logger.Zerolog(),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg, deps.log)
	if err != nil {
		return fail(err)
	}
	deps.Store = store
	cleanups = append(cleanups, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("closing store")
		}
	})
	logger.Info("Storage ready (driver=%s)", cfg.StorageDriver)

	seed, err := tagcatalog.ReadSeedFile(cfg.TagsFile)
	if err != nil {
		return fail(err)
	}
	if _, err := tagcatalog.Seed(ctx, store, seed); err != nil {
		return fail(err)
	}

	settings, err := config.LoadAISettings(cfg.DataDir, cfg.DefaultAISettings())
	if err != nil {
		return fail(err)
	}
	deps.Settings = settings

	gateway := NewGateway(cfg, settings.Get(), deps.log)
	deps.Pipeline = pipeline.NewService(
		pipelineConfig(cfg),
		gateway,
		store,
		store,
		parser.NewEMLParser(),
		deps.log,
	)
	cleanups = append(cleanups, func() { deps.Pipeline.Close() })

	deps.Hub = realtime.NewHub(deps.log)

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			// progress still reaches SSE clients
			logger.Warn("Redis connection failed, stream progress disabled: %v", err)
		} else {
			deps.Redis = client
			deps.RedisProgress = messaging.NewRedisProgress(client)
			cleanups = append(cleanups, func() { client.Close() })
			logger.Info("Redis progress stream enabled (%s)", messaging.StreamProgress)
		}
	}

	deps.Runner = worker.NewRunner(deps.Pipeline, deps.Progress(), &worker.RunnerConfig{
		QueueSize:    cfg.BatchQueueSize,
		KeepFinished: 50,
		JobTimeout:   cfg.BatchTimeout(),
	}, deps.log)

	return deps, cleanup, nil
}

// Progress fans out to the SSE hub and, when configured, the Redis stream.
func (d *Dependencies) Progress() out.ProgressPublisher {
	pubs := out.MultiProgress{d.Hub}
	if d.RedisProgress != nil {
		pubs = append(pubs, d.RedisProgress)
	}
	return pubs
}

// ApplySettings rebuilds the gateway from settings and swaps it into the
// pipeline. The settings have already been persisted.
func (d *Dependencies) ApplySettings(settings config.AISettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	d.Pipeline.SwapGateway(NewGateway(d.Config, settings, d.log))
	logger.Info("AI settings applied (provider=%s, model=%s)", settings.Provider, settings.Model)
	return nil
}

// HealthChecks returns the dependency pings reported on /ready.
func (d *Dependencies) HealthChecks() map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{
		"model_server": func(ctx context.Context) error {
			if ok, _ := d.Pipeline.CheckConnection(ctx); !ok {
				return fmt.Errorf("unreachable")
			}
			return nil
		},
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return checks
}

// NewGateway builds a model gateway from process config and user settings.
func NewGateway(cfg *config.Config, s config.AISettings, log zerolog.Logger) *llm.Gateway {
	return llm.NewGateway(llm.GatewayConfig{
		Provider:        s.Provider,
		ServerURL:       s.ServerURL,
		APIKey:          cfg.LLMAPIKey,
		Model:           s.Model,
		Timeout:         time.Duration(s.TimeoutSec) * time.Second,
		MaxTokens:       s.MaxTokens,
		DisableThinking: s.DisableThinking,
		BreakerFailures: cfg.LLMBreakerFailures,
	}, log)
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		NeedsReplyTag: cfg.NeedsReplyTag,
		Preflight:     cfg.PreflightCheck,
		// engines leave Model empty so the gateway's configured model applies
		// and survives a gateway swap
		Classification: classification.Config{
			BodyLimit: cfg.ClassifyBodyLimit,
		},
		Reply: reply.Config{
			BodyLimit: cfg.ReplyBodyLimit,
			Style: reply.Style{
				Tone:     reply.ParseTone(cfg.ReplyTone),
				Language: cfg.ReplyLanguage,
			},
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (out.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageJSON:
		return persistence.NewJSONStore(cfg.DataDir, log)
	case config.StorageSQLite:
		return persistence.OpenSQL(persistence.DriverSQLite, cfg.SQLitePath())
	case config.StoragePostgres:
		return persistence.OpenSQL(persistence.DriverPostgres, cfg.DatabaseURL)
	case config.StorageMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return nil, err
		}
		store := mongodb.NewStore(client, cfg.MongoDBName)
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
