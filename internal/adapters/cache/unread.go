// Package cache holds per-person counters shared with the web tier.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const unreadPrefix = "unread:"

// UnreadKey is the key holding a person's unread notification count.
func UnreadKey(personID string) string {
	return unreadPrefix + personID
}

// RedisCounter keeps unread counts in Redis so the site can read them
// without touching the database.
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter connects using a redis:// URL.
func NewRedisCounter(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCounter{rdb: redis.NewClient(opts)}, nil
}

// Ping verifies the connection.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Incr bumps the unread count for personID and returns the new value.
func (c *RedisCounter) Incr(ctx context.Context, personID string) (int64, error) {
	n, err := c.rdb.Incr(ctx, UnreadKey(personID)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", UnreadKey(personID), err)
	}
	return n, nil
}

// Get returns the unread count for personID; missing keys read as zero.
func (c *RedisCounter) Get(ctx context.Context, personID string) (int64, error) {
	n, err := c.rdb.Get(ctx, UnreadKey(personID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", UnreadKey(personID), err)
	}
	return n, nil
}

func (c *RedisCounter) Close() error {
	return c.rdb.Close()
}

// MemCounter is the in-process counter used when no Redis URL is set.
type MemCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemCounter() *MemCounter {
	return &MemCounter{counts: make(map[string]int64)}
}

func (c *MemCounter) Incr(_ context.Context, personID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[personID]++
	return c.counts[personID], nil
}

func (c *MemCounter) Get(_ context.Context, personID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[personID], nil
}

func (c *MemCounter) Close() error { return nil }
