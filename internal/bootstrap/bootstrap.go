// Package bootstrap wires configuration into the collaborators shared by
// the API server and the stemctl CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/events"
	"github.com/stemline/api/internal/pipeline"
	"github.com/stemline/api/internal/store"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	memoryBlobBaseURL = "memory://stemline"
)

// Components are the long lived collaborators of a process
type Components struct {
	Redis    *redis.Client
	Sonauto  *client.SonautoClient
	MusicAI  *client.MusicAIClient
	Assets   *client.AssetClient
	Blobs    client.StorageClient
	Tracks   store.TrackStore
	Events   *events.Client
	Pipeline *pipeline.Pipeline

	// BucketConfigured is false when blobs only live in process memory
	BucketConfigured bool

	closers []func()
}

// Build creates every collaborator described by cfg. Optional services
// (bucket, NATS) degrade with a warning; a broken document store is fatal.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.closers = append(c.closers, func() { _ = c.Redis.Close() })
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not available")
	}

	c.Sonauto = client.NewSonautoClient(&cfg.Sonauto)
	c.MusicAI = client.NewMusicAIClient(&cfg.MusicAI)
	c.Assets = client.NewAssetClient(&cfg.Pipeline)

	blobs, configured, err := buildBlobs(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Blobs, c.BucketConfigured = blobs, configured

	tracks, closeTracks, err := buildTrackStore(ctx, cfg, c.Redis)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Tracks = tracks
	if closeTracks != nil {
		c.closers = append(c.closers, closeTracks)
	}

	deps := pipeline.Deps{
		Generator: c.Sonauto,
		Separator: c.MusicAI,
		Blobs:     c.Blobs,
		Fetcher:   c.Assets,
		Tracks:    c.Tracks,
	}

	if cfg.Events.NatsURL != "" {
		ec, err := events.Connect(cfg.Events.NatsURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats not available, track events disabled")
		} else {
			c.Events = ec
			c.closers = append(c.closers, ec.Close)
			deps.Events = events.NewTrackPublisher(ec, cfg.Events.Subject)
		}
	}

	c.Pipeline = pipeline.New(deps, pipeline.OptionsFromConfig(&cfg.Pipeline))

	logger.Info().
		Bool("sonauto", c.Sonauto.IsConfigured()).
		Bool("musicai", c.MusicAI.IsConfigured()).
		Bool("bucket", c.BucketConfigured).
		Str("documents", cfg.Documents.Backend).
		Bool("events", c.Events != nil).
		Msg("collaborators ready")

	return c, nil
}

// buildBlobs falls back to process memory outside production. Memory blob
// URLs cannot be fetched by the separation service and do not survive a
// restart.
func buildBlobs(cfg *config.Config, logger zerolog.Logger) (client.StorageClient, bool, error) {
	var reason error
	if cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretAccessKey == "" {
		reason = errors.New("storage credentials not set")
	} else {
		blobs, err := client.NewS3BlobStore(&cfg.Storage)
		if err == nil {
			return blobs, true, nil
		}
		reason = err
	}

	if !allowsMemoryBlobs(cfg.Server.Env) {
		return nil, false, fmt.Errorf("blob storage required in %s: %w", cfg.Server.Env, reason)
	}
	logger.Warn().Err(reason).Msg("blobs kept in memory, uploads cannot be separated remotely and are lost on restart")
	return client.NewMemoryStorage(memoryBlobBaseURL), false, nil
}

func allowsMemoryBlobs(env string) bool {
	switch env {
	case "", "development", "test":
		return true
	default:
		return false
	}
}

func buildTrackStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (store.TrackStore, func(), error) {
	switch cfg.Documents.Backend {
	case "", BackendRedis:
		return store.NewRedisStore(redisClient), nil, nil
	case BackendPostgres:
		if cfg.Documents.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres document store requires POSTGRES_DSN")
		}
		pool, err := store.NewPool(ctx, cfg.Documents.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown document backend %q", cfg.Documents.Backend)
	}
}

// Close releases connections in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
