package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix is the default namespace for snapshot keys in Redis.
	DefaultRedisKeyPrefix = "costlens:spend"

	// DefaultRedisTTL is the default time-to-live for cached snapshots.
	// Redis expires stale snapshots on its own; the local backend relies on
	// the consumer checking FetchedAt.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix namespaces snapshot keys (defaults to "costlens:spend")
	KeyPrefix string

	// TTL is the time-to-live for cached snapshots (defaults to 24 hours)
	TTL time.Duration
}

// RedisCache implements Cache using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a new Redis-based cache.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis snapshot cache connected", "prefix", prefix, "ttl", ttl)

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + ":" + key
}

// Get retrieves the snapshot stored under key from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No snapshot yet, not an error
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot from redis: %w", err)
	}

	return &snap, nil
}

// Set stores the snapshot in Redis.
func (c *RedisCache) Set(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Key == "" {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.redisKey(snap.Key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
