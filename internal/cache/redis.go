package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client with JSON helpers. All methods are nil-safe
// so callers can treat the cache as optional.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// New returns a Redis client based on provided configuration.
func New(cfg Config, logger *slog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger.With("component", "redis"),
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// SetJSON caches a value as JSON with the provided TTL.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON retrieves a JSON value and unmarshals into dest. The boolean
// reports whether the key existed.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if r == nil {
		return false, nil
	}
	res, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(res), dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	return true, nil
}

// Delete removes a key. Missing keys are not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
