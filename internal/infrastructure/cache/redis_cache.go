package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache stores cache entries in Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache wraps an existing client. prefix namespaces every key.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL, connects and pings. A failed ping is logged
// but not fatal: the cache degrades to misses until Redis comes back.
func DialRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	if url == "" {
		url = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Failed to connect to Redis", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Info("Connected to Redis", zap.String("addr", opts.Addr))
	}
	return client, nil
}

func (r *RedisCache) key(key string) string {
	return SafeKey(r.prefix + key)
}

// Get retrieves a value from Redis.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return val, true, nil
}

// Set stores a value in Redis with an expiration time.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

// Delete removes a key from Redis asynchronously (non-blocking).
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Unlink(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to unlink key: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity.
func (r *RedisCache) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
