// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finderhq/influencer-finder/internal/api"
	"github.com/finderhq/influencer-finder/internal/blob"
	"github.com/finderhq/influencer-finder/internal/cache"
	"github.com/finderhq/influencer-finder/internal/config"
	"github.com/finderhq/influencer-finder/internal/discovery"
	"github.com/finderhq/influencer-finder/internal/keystore"
	"github.com/finderhq/influencer-finder/internal/logging"
	"github.com/finderhq/influencer-finder/internal/metrics"
	"github.com/finderhq/influencer-finder/internal/migrations"
	"github.com/finderhq/influencer-finder/internal/notify"
	"github.com/finderhq/influencer-finder/internal/search"
	"github.com/finderhq/influencer-finder/internal/store/postgres"
	"github.com/finderhq/influencer-finder/internal/syncjob"
)

// App holds all shared, long-lived services. It is initialized once at
// startup and passed to the commands that need it.
type App struct {
	Config        config.Config
	Logger        *zap.Logger
	Redis         *redis.Client
	Pool          *pgxpool.Pool
	Cache         *cache.Store
	Keys          *keystore.Store
	Users         *postgres.UserStore
	Cities        *postgres.CityStore
	Subscriptions *postgres.SubscriptionStore
	Exports       blob.Provider
	Notifier      notify.Provider
	Orchestrator  *search.Orchestrator
	SyncStore     *syncjob.Store
	SyncQueue     *syncjob.Queue
	SyncWorker    *syncjob.Worker
	Server        *api.Server
}

// NewApp creates and initializes the service graph from configuration.
// It fails fast when any critical dependency cannot be reached.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	logger.Info("initializing application services")

	if cfg.DB.Migrate {
		if err := migrations.Up(ctx, cfg.DB.DSN); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := postgres.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	exports, err := buildExports(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	cacheStore := cache.NewStore(redisClient, logger)
	keys := keystore.NewStoreWithPool(pool, logger)
	client := discovery.New(discovery.Config{
		BaseURL: cfg.Discovery.BaseURL,
		Host:    cfg.Discovery.Host,
		Timeout: cfg.DiscoveryTimeout(),
	}, logger)
	orchestrator := search.New(client, cacheStore, keys, search.Config{
		ServiceName: cfg.Discovery.ServiceName,
		MaxPages:    cfg.Search.MaxPages,
		PageDelay:   cfg.PageDelay(),
	}, logger)

	syncStore := syncjob.NewStore()
	syncQueue := syncjob.NewQueue(cfg.Search.SyncQueueCap)
	syncWorker := syncjob.NewWorker(syncQueue, syncStore, orchestrator, cacheStore, notifier, logger)

	users := postgres.NewUserStore(pool)
	cities := postgres.NewCityStore(pool)
	subscriptions := postgres.NewSubscriptionStore(pool)

	server := api.NewServer(api.Deps{
		Searcher:      orchestrator,
		Syncer:        syncWorker,
		Jobs:          syncStore,
		Users:         users,
		Cities:        cities,
		Subscriptions: subscriptions,
		Keys:          keys,
		Exports:       exports,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		TokenTTL:      cfg.TokenTTL(),
		Timeout:       cfg.ServerTimeout(),
		Logger:        logger,
	})

	logger.Info("application services initialized")

	return &App{
		Config:        cfg,
		Logger:        logger,
		Redis:         redisClient,
		Pool:          pool,
		Cache:         cacheStore,
		Keys:          keys,
		Users:         users,
		Cities:        cities,
		Subscriptions: subscriptions,
		Exports:       exports,
		Notifier:      notifier,
		Orchestrator:  orchestrator,
		SyncStore:     syncStore,
		SyncQueue:     syncQueue,
		SyncWorker:    syncWorker,
		Server:        server,
	}, nil
}

func buildExports(ctx context.Context, cfg config.Config, logger *zap.Logger) (blob.Provider, error) {
	if cfg.Blob.GCSBucket == "" {
		logger.Info("export archiving disabled")
		return &blob.NoOpProvider{}, nil
	}
	logger.Info("using gcs export archive", zap.String("bucket", cfg.Blob.GCSBucket))
	provider, err := blob.NewGCSProvider(ctx, cfg.Blob.GCSBucket, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize export archive: %w", err)
	}
	return provider, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Provider, error) {
	if cfg.Notify.ProjectID == "" || cfg.Notify.TopicName == "" {
		logger.Info("sync notifications disabled")
		return &notify.NoOpProvider{}, nil
	}
	logger.Info("using pubsub sync notifications", zap.String("topic", cfg.Notify.TopicName))
	provider, err := notify.NewPubSubProvider(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicName, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize notifier: %w", err)
	}
	return provider, nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	a.Orchestrator.Wait()
	a.SyncQueue.Close()
	if err := a.Notifier.Close(); err != nil {
		a.Logger.Warn("error closing notifier", zap.Error(err))
	}
	if closer, ok := a.Exports.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn("error closing export archive", zap.Error(err))
		}
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("error closing redis client", zap.Error(err))
	}
	a.Pool.Close()
	_ = a.Logger.Sync()
}
