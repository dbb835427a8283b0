package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/fixed_window.lua
var fixedWindowScript string

type Client struct {
	rdb          *redis.Client
	windowScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		windowScript: redis.NewScript(fixedWindowScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// IncrementWindow atomically bumps the fixed-window counter for a key and
// returns the count inside the current window. The window TTL starts on
// the first hit.
func (c *Client) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	result, err := c.windowScript.Run(ctx, c.rdb, []string{fmt.Sprintf("ratelimit:%s", key)}, int(window.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("fixed window script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return count, nil
}

// CacheSet stores a JSON-encoded value with a TTL.
func (c *Client) CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("cache:%s", key), data, ttl).Err()
}

// CacheGet loads a JSON-encoded value. Returns false when the key is
// absent.
func (c *Client) CacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("cache:%s", key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

// CacheDelete drops a cached value.
func (c *Client) CacheDelete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("cache:%s", key)).Err()
}
