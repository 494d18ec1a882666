package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis call so a slow backend fails the session
// operation instead of hanging the request.
const opTimeout = 3 * time.Second

// Client wraps the Redis client with bounded-timeout helpers.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// Set stores a value with a TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value. Returns redis.Nil if the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Get(ctx, key).Result()
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Del(ctx, key).Err()
}

// Keys returns all keys matching a pattern.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Keys(ctx, pattern).Result()
}

// IsNil reports whether the error is a key miss.
func IsNil(err error) bool {
	return err == redis.Nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
