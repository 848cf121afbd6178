package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/gosom/google-maps-review-images/redis/config"
)

// Client enqueues tasks through asynq.
type Client struct {
	client *asynq.Client
	rdb    goredis.UniversalClient
	cfg    *config.RedisConfig
	mu     sync.RWMutex
}

// NewClient connects to redis and fails when it does not answer a ping.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opt := cfg.ClientOpt()

	rdb, ok := opt.MakeRedisClient().(goredis.UniversalClient)
	if !ok {
		return nil, errors.New("unexpected redis client type")
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}

	ans := Client{
		client: asynq.NewClient(opt),
		rdb:    rdb,
		cfg:    cfg,
	}

	return &ans, nil
}

// Enqueue adds task to the queue.
// Useful options:
//   - asynq.MaxRetry(n): Set maximum number of retries
//   - asynq.Queue(name): Specify queue name
//   - asynq.Timeout(d): Set task timeout duration
//   - asynq.Retention(d): Set task retention duration
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	return info, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := multierr.Append(c.client.Close(), c.rdb.Close()); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}

	return nil
}

// IsHealthy pings redis.
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rdb.Ping(ctx).Err() == nil
}
