// Package cache keeps derived attention counts in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leasebook/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace    = "leasebook"
	attentionPrefix = "attention"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// AttentionCache stores per-lease-group attention counts. Entries expire
// after TTL and are deleted whenever a thread of the group changes.
type AttentionCache struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*AttentionCache, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &AttentionCache{store: raw, raw: raw, ttl: cfg.CacheTTL}, nil
}

func (c *AttentionCache) GetCount(ctx context.Context, leaseGroupID string) (int, bool, error) {
	v, err := c.store.Get(ctx, CountKey(leaseGroupID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Unreadable entries are treated as a miss and overwritten.
		return 0, false, nil
	}
	return n, true, nil
}

func (c *AttentionCache) SetCount(ctx context.Context, leaseGroupID string, n int) error {
	return c.store.Set(ctx, CountKey(leaseGroupID), strconv.Itoa(n), c.ttl).Err()
}

func (c *AttentionCache) Invalidate(ctx context.Context, leaseGroupID string) error {
	return c.store.Del(ctx, CountKey(leaseGroupID)).Err()
}

func (c *AttentionCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

func (c *AttentionCache) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// CountKey is the namespaced key holding a group's attention count.
func CountKey(leaseGroupID string) string {
	return strings.Join([]string{keyNamespace, attentionPrefix, strings.TrimSpace(leaseGroupID)}, ":")
}
