package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Client is the Redis connection run queues are built on.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
	owned  bool // Close releases rdb only when the client dialled it
}

// NewClient dials redisURL and fails unless the server answers.
func NewClient(ctx context.Context, redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis for run queue", "addr", opt.Addr)

	return &Client{rdb: rdb, logger: logger, owned: true}, nil
}

// NewClientFrom queues on an existing connection, such as the API's event
// bus client. Close leaves that connection open.
func NewClientFrom(rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.rdb.Close()
}

// Client exposes the connection for simulator locks and event publishing.
func (c *Client) Client() *redis.Client {
	return c.rdb
}
