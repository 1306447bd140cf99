// Package redis dials the cache that backs risk assessments.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arbiter/internal/platform/config"
)

// Client wraps go-redis with the reachability probe /healthz reports on.
type Client struct {
	*redis.Client
}

// New dials the cache from config. An empty URL means caching is disabled
// and returns a nil client; callers treat nil as "no cache" and every risk
// assessment goes to the scoring model.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	// A dead cache at startup is a config problem; fail fast instead of
	// letting every assessment eat a cache miss timeout.
	probe := cfg.DialTimeout
	if probe <= 0 {
		probe = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), probe)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports cache reachability for the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
