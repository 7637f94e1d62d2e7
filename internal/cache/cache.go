// Package cache keeps short-lived JSON projections of API reads in Redis.
//
// The daemon invalidates everything under a day after each pipeline run, so
// entries only need a TTL long enough to absorb bursts of page loads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"newsboy/internal/config"
	"newsboy/internal/logging"
)

const keyPrefix = "newsboy:"

// Cache stores JSON projections by key.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Invalidate drops every key starting with prefix.
	Invalidate(ctx context.Context, prefix string) error
	Close() error
}

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// New returns a Redis cache when enabled and a no-op cache otherwise. A
// failed ping degrades to the no-op cache with a warning.
func New(ctx context.Context, cfg config.Cache, logger *slog.Logger) Cache {
	logger = logging.NewComponentLogger(logger, "cache")
	if !cfg.Enabled {
		return Nop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logging.WarnWithContext(logger, "redis unavailable", "cache_unavailable",
			logging.String("redis_addr", cfg.RedisAddr),
			logging.Error(err),
			logging.String(logging.FieldImpact, "API reads served without cache"),
			logging.String(logging.FieldErrorHint, "check cache.redis_addr or disable the cache"),
		)
		_ = client.Close()
		return Nop{}
	}
	return NewRedis(client, time.Duration(cfg.TTLSeconds)*time.Second)
}

// Redis is a Cache backed by go-redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", prefix, err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }

func (Nop) Set(context.Context, string, any) error { return nil }

func (Nop) Invalidate(context.Context, string) error { return nil }

func (Nop) Close() error { return nil }
