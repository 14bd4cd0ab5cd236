package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain"

	"github.com/go-redis/redis/v8"
)

// Client wraps the go-redis client shared by the job store, limiter and locker.
type Client struct {
	cli *redis.Client
}

// NewClient accepts either a redis:// URL or a bare host:port and pings on creation.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStoreUnavailable, err)
	}
	return &Client{cli: c}, nil
}

// Wrap adopts an existing go-redis client.
func Wrap(c *redis.Client) *Client {
	return &Client{cli: c}
}

func options(cfg *config.RedisConfig) (*redis.Options, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		if cfg.DB != 0 {
			opts.DB = cfg.DB
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.cli == nil {
		return fmt.Errorf("%w: client not initialized", domain.ErrStoreUnavailable)
	}
	if err := c.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Raw exposes the underlying client for libraries that take one.
func (c *Client) Raw() *redis.Client { return c.cli }

func (c *Client) Close() error { return c.cli.Close() }
