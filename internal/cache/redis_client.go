// Package cache wraps Redis for adapter-response and baseline caching.
// A cache miss is never an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinela-br/sentinela/internal/logging"
)

// Client wraps a Redis connection with JSON marshaling helpers
type Client struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewClient connects to Redis and verifies connectivity (fail fast on
// startup).
func NewClient(ctx context.Context, addr, password string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address missing")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger := logging.Component("redis")
	logger.Info("redis client connected", "addr", addr)

	return &Client{
		client: client,
		logger: logger,
		ttl:    15 * time.Minute,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get retrieves a cached value into target. Returns false on miss.
func (c *Client) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}
	c.logger.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores a value with the default 15-minute TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}
	return nil
}

// ResponseKey builds the cache key for one adapter call: source name plus
// a stable hash of the filter mapping.
func ResponseKey(source string, filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, filters[k])
	}
	return fmt.Sprintf("response:%s:%x", source, h.Sum64())
}

// BaselineKey builds the cache key for per-category price statistics
func BaselineKey(category string) string {
	return fmt.Sprintf("baseline:category:%s", category)
}
