package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// Client wraps the Redis client shared by the cache store, the registry and
// the rate limiter.
type Client struct {
	*redis.Client
}

// NewClient creates a Redis client. URL takes precedence over Addr.
// URL format: redis://[:password@]host:port[/db]
// The connection is lazy; use Ping to check reachability.
func NewClient(o Options) (*Client, error) {
	var opts *redis.Options
	if o.URL != "" {
		var err error
		opts, err = redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
	} else {
		if o.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		opts = &redis.Options{
			Addr:     o.Addr,
			Password: o.Password,
			DB:       o.DB,
		}
	}

	opts.MaxRetries = 3
	opts.MinRetryBackoff = 50 * time.Millisecond
	opts.MaxRetryBackoff = 2 * time.Second

	return &Client{Client: redis.NewClient(opts)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}
