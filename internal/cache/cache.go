// Package cache holds the advisory redis-backed caches: the read-through
// service configuration and the recently-active-users set. Both tolerate
// stale reads and are never correctness-critical.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"
)

const (
	configKey      = "leafwiki:config"
	recentUsersKey = "leafwiki:recent-users"
	configTTL      = 5 * time.Minute
	recentLimit    = 50
)

// ServiceConfig is the parsed body of the well-known configuration page.
type ServiceConfig struct {
	Service struct {
		Title string `toml:"title"`
	} `toml:"service"`
	Admin struct {
		Email string `toml:"email"`
	} `toml:"admin"`
}

// ParseServiceConfig decodes a configuration page body (TOML). Unparseable
// bodies fall back to defaults rather than failing a request.
func ParseServiceConfig(body string) ServiceConfig {
	cfg := defaultServiceConfig()
	if err := toml.Unmarshal([]byte(body), &cfg); err != nil {
		return defaultServiceConfig()
	}
	if cfg.Service.Title == "" {
		cfg.Service.Title = "Leafwiki"
	}
	return cfg
}

func defaultServiceConfig() ServiceConfig {
	var cfg ServiceConfig
	cfg.Service.Title = "Leafwiki"
	return cfg
}

// Caches bundles the redis-backed advisory caches.
type Caches struct {
	client *redis.Client
}

// New connects to redis, retrying the initial ping with backoff.
func New(ctx context.Context, redisURL string) (*Caches, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(func() error { return client.Ping(ctx).Err() }, policy); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Caches{client: client}, nil
}

// NewWithClient wraps an existing redis client (used by tests).
func NewWithClient(client *redis.Client) *Caches {
	return &Caches{client: client}
}

func (c *Caches) Close() error {
	return c.client.Close()
}

func (c *Caches) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ConfigBody returns the cached configuration page body, calling load on a
// miss and caching the result for a few minutes.
func (c *Caches) ConfigBody(ctx context.Context, load func(context.Context) (string, error)) (string, error) {
	body, err := c.client.Get(ctx, configKey).Result()
	if err == nil {
		return body, nil
	}
	if err != redis.Nil {
		return "", fmt.Errorf("read config cache: %w", err)
	}

	body, err = load(ctx)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, configKey, body, configTTL).Err(); err != nil {
		return "", fmt.Errorf("fill config cache: %w", err)
	}
	return body, nil
}

// InvalidateConfig drops the cached configuration; called after the
// configuration page itself is edited.
func (c *Caches) InvalidateConfig(ctx context.Context) error {
	return c.client.Del(ctx, configKey).Err()
}

// MarkRecentUser records that a principal was just active. The set is
// trimmed to a fixed size; newest entries win.
func (c *Caches) MarkRecentUser(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}
	now := float64(time.Now().UnixNano())
	if err := c.client.ZAdd(ctx, recentUsersKey, redis.Z{Score: now, Member: email}).Err(); err != nil {
		return fmt.Errorf("mark recent user: %w", err)
	}
	return c.client.ZRemRangeByRank(ctx, recentUsersKey, 0, int64(-recentLimit-1)).Err()
}

// RecentUsers lists recently active principals, most recent first.
func (c *Caches) RecentUsers(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		n = recentLimit
	}
	emails, err := c.client.ZRevRange(ctx, recentUsersKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent users: %w", err)
	}
	return emails, nil
}
