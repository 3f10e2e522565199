package server

import (
	"context"
	"fmt"

	"github.com/bazarkua/molexa-api/internal/config"
	"github.com/bazarkua/molexa-api/internal/eventstore"
	"github.com/bazarkua/molexa-api/internal/fingerprint"
	"github.com/bazarkua/molexa-api/internal/lock"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/publisher"
	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/bazarkua/molexa-api/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Everything the HTTP server and the CLI share. Postgres and Redis are nil
// when unconfigured or unreachable.
type Components struct {
	Postgres  *storage.Postgres
	Redis     *storage.RedisClient
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Hasher    *fingerprint.Hasher
	Analytics *service.AnalyticsService
	Hub       *publisher.Hub
}

// Connects to the configured backends and assembles the analytics pipeline.
// Backend failures degrade to memory-only mode; only a broken archive store
// or fingerprint setup is fatal.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	c := &Components{Registry: registry, Metrics: m}
	c.Postgres = connectPostgres(cfg, log)
	c.Redis = connectRedis(cfg, log)

	hasher, err := newHasher(cfg, log)
	if err != nil {
		return nil, err
	}
	c.Hasher = hasher

	aggregator := service.NewAggregator(c.Postgres, cfg.Analytics.PersistQueueSize, log, m)

	var archiver *service.Archiver
	if c.Postgres != nil {
		store, err := newArchiveStore(ctx, cfg)
		if err != nil {
			c.Close(ctx)
			return nil, err
		}

		locker := lock.Chain{lock.NewLocal()}
		if c.Redis != nil {
			locker = append(locker, lock.NewRedis(c.Redis, 0))
		}

		archiver = service.NewArchiver(c.Postgres, store, locker, aggregator, cfg.Analytics.PruneOnArchive, log, m)
		log.Info("Archive store ready", logger.String("backend", store.Name()))
	}

	c.Analytics = service.NewAnalyticsService(
		eventstore.New(cfg.Analytics.BufferCapacity),
		aggregator,
		archiver,
		hasher,
		log,
		m,
		service.AnalyticsOptions{
			TopK:         cfg.Analytics.TopK,
			RecentLimit:  cfg.Analytics.RecentLimit,
			HydrateCount: cfg.Analytics.HydrateCount,
		},
	)

	c.Hub = publisher.NewHub(func() interface{} {
		return c.Analytics.Snapshot()
	}, cfg.Analytics.PublishInterval, log, m)
	c.Analytics.SetNotifier(c.Hub)

	return c, nil
}

func connectPostgres(cfg *config.Config, log logger.Logger) *storage.Postgres {
	if !cfg.DatabaseEnabled() {
		return nil
	}

	db, err := storage.NewPostgres(cfg.Database.URL)
	if err != nil {
		log.Warn("Failed to connect to database", logger.Error(err))
		return nil
	}

	if err := db.AutoMigrate(); err != nil {
		log.Warn("Failed to migrate analytics schema", logger.Error(err))
		db.Close()
		return nil
	}

	log.Info("Connected to database successfully")
	return db
}

func connectRedis(cfg *config.Config, log logger.Logger) *storage.RedisClient {
	if !cfg.RedisEnabled() {
		return nil
	}

	redis, err := storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("Failed to connect to Redis, locking and rate limiting are local only", logger.Error(err))
		return nil
	}

	log.Info("Connected to redis successfully")
	return redis
}

func newHasher(cfg *config.Config, log logger.Logger) (*fingerprint.Hasher, error) {
	if cfg.Analytics.FingerprintSalt != "" {
		return fingerprint.New(cfg.Analytics.FingerprintSalt)
	}

	log.Warn("No fingerprint salt configured, using a random salt for this process")
	return fingerprint.NewRandom()
}

func newArchiveStore(ctx context.Context, cfg *config.Config) (storage.ArchiveStore, error) {
	switch cfg.Archive.Backend {
	case "", "file":
		store, err := storage.NewFileStore(cfg.Archive.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Archive.S3Bucket,
			Region:       cfg.Archive.S3Region,
			Endpoint:     cfg.Archive.S3Endpoint,
			AccessKey:    cfg.Archive.S3AccessKey,
			SecretKey:    cfg.Archive.S3SecretKey,
			UsePathStyle: cfg.Archive.S3UsePathStyle,
			Prefix:       cfg.Archive.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Archive.Backend)
	}
}

// Drains pending analytics writes and closes connections
func (c *Components) Close(ctx context.Context) error {
	var firstErr error

	if c.Analytics != nil {
		if err := c.Analytics.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
