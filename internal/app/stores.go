// Package app wires configuration to concrete backends for the binaries.
package app

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/cache"
	"lootcase-api/internal/config"
	"lootcase-api/internal/ratelimit"
	"lootcase-api/internal/repository"
)

// OpenStore opens the configured store and applies its migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Store.IsPostgres() {
		return repository.NewPostgresStore(ctx, cfg.Store.PostgresDSN(), cfg.Store.MaxConns)
	}
	return repository.NewSQLiteStore(ctx, cfg.Store.Path)
}

// OpenAudit returns the audit sink. With AUDIT_DB_TYPE=store the store
// itself is the sink and close is a no-op.
func OpenAudit(ctx context.Context, cfg *config.Config, store repository.Store) (repository.AuditRepository, func() error, error) {
	if cfg.Audit.Type != "mysql" {
		return store, func() error { return nil }, nil
	}

	repo, err := repository.NewMySQLAuditRepository(ctx, cfg.Audit.DSN())
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// OpenRedis connects when Redis is configured. A nil client with a nil error
// means Redis is disabled.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	return cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// NewLimiter returns the configured limiter backend. The memory limiter is
// also returned on its own so callers can report its size.
func NewLimiter(cfg *config.Config, client *redis.Client) (ratelimit.Limiter, *ratelimit.Memory) {
	if cfg.RateLimit.Backend == "redis" && client != nil {
		return ratelimit.NewRedis(client, cfg.Redis.KeyPrefix), nil
	}

	mem := ratelimit.NewMemory(
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
		ratelimit.WithIdleMultiplier(cfg.RateLimit.IdleMultiplier),
	)
	return mem, mem
}

// NewCache returns a Redis cache when a client is available, else memory.
func NewCache(cfg *config.Config, client *redis.Client) cache.Cache {
	if client != nil {
		return cache.NewRedisCache(client, cfg.Redis.KeyPrefix)
	}
	return cache.NewMemoryCache(cfg.RateLimit.SweepInterval)
}

// SessionSecret returns the configured signing secret. Outside production a
// missing secret is replaced by a random per-process one.
func SessionSecret(cfg *config.Config) ([]byte, error) {
	if cfg.Session.Secret != "" {
		return []byte(cfg.Session.Secret), nil
	}
	if cfg.App.IsProduction() {
		return nil, fmt.Errorf("SESSION_SECRET is required in production")
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	log.WithField("component", "app").Warn("SESSION_SECRET not set, using an ephemeral secret; sessions will not survive a restart")
	return secret, nil
}
