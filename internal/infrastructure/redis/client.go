package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Client wraps the go-redis client with the handful of knobs the services
// configure.
type Client struct {
	rdb *goredis.Client
}

type Options struct {
	URL      string
	Password string
	PoolSize int
	Timeout  time.Duration
}

func NewClient(opts Options) (*Client, error) {
	ropts, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, domain.ErrRedisUnavailable(err)
	}
	if opts.Password != "" {
		ropts.Password = opts.Password
	}
	if opts.PoolSize > 0 {
		ropts.PoolSize = opts.PoolSize
	}
	if opts.Timeout > 0 {
		ropts.DialTimeout = opts.Timeout
		ropts.ReadTimeout = opts.Timeout
		ropts.WriteTimeout = opts.Timeout
	}
	return &Client{rdb: goredis.NewClient(ropts)}, nil
}

// NewClientFromRedis wraps an existing go-redis client (tests).
func NewClientFromRedis(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
