// Package config turns a redis url and the worker settings into asynq options.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

var ErrInvalidConfig = errors.New("invalid redis configuration")

// RedisConfig holds Redis connection and queue parameters.
type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	UseTLS          bool
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	RetentionPeriod time.Duration
	TaskTimeout     time.Duration
	QueuePriorities map[string]int
}

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

const (
	defaultHost          = "localhost"
	defaultPort          = 6379
	defaultWorkers       = 4
	defaultRetryInterval = time.Minute
	defaultMaxRetries    = 3
	defaultRetention     = 7 * 24 * time.Hour
	defaultTaskTimeout   = 10 * time.Minute
	maxDB                = 15
	maxWorkers           = 100
	maxMaxRetries        = 10
)

// DefaultQueuePriorities defines the default priority settings for task queues
var DefaultQueuePriorities = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// Default returns a configuration for a local redis.
func Default() *RedisConfig {
	ans := RedisConfig{
		Host:            defaultHost,
		Port:            defaultPort,
		Workers:         defaultWorkers,
		RetryInterval:   defaultRetryInterval,
		MaxRetries:      defaultMaxRetries,
		RetentionPeriod: defaultRetention,
		TaskTimeout:     defaultTaskTimeout,
		QueuePriorities: make(map[string]int, len(DefaultQueuePriorities)),
	}

	for queue, priority := range DefaultQueuePriorities {
		ans.QueuePriorities[queue] = priority
	}

	return &ans
}

// Parse reads redis://[:password@]host[:port][/db]. The rediss scheme enables
// TLS.
func Parse(redisURL string) (*RedisConfig, error) {
	cfg := Default()

	u, err := url.Parse(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "redis":
	case "rediss":
		cfg.UseTLS = true
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		cfg.Host = host
	}

	if port := u.Port(); port != "" {
		cfg.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("%w: port: %w", ErrInvalidConfig, err)
		}
	}

	if password, ok := u.User.Password(); ok {
		cfg.Password = password
	}

	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		cfg.DB, err = strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("%w: database number: %w", ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *RedisConfig) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidConfig)
	case c.DB < 0 || c.DB > maxDB:
		return fmt.Errorf("%w: db must be between 0 and %d", ErrInvalidConfig, maxDB)
	case c.Workers < 1 || c.Workers > maxWorkers:
		return fmt.Errorf("%w: workers must be between 1 and %d", ErrInvalidConfig, maxWorkers)
	case c.MaxRetries < 0 || c.MaxRetries > maxMaxRetries:
		return fmt.Errorf("%w: max retries must be between 0 and %d", ErrInvalidConfig, maxMaxRetries)
	case c.RetryInterval < time.Second:
		return fmt.Errorf("%w: retry interval must be at least 1s", ErrInvalidConfig)
	}

	return nil
}

// GetRedisAddr returns the formatted Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientOpt returns the asynq connection options.
func (c *RedisConfig) ClientOpt() asynq.RedisClientOpt {
	ans := asynq.RedisClientOpt{
		Addr:         c.GetRedisAddr(),
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     max(10, c.Workers+2),
	}

	if c.UseTLS {
		ans.TLSConfig = &tls.Config{
			ServerName: c.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	return ans
}
