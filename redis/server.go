package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/redis/config"
)

// Server consumes tasks with a pool of asynq workers.
type Server struct {
	server  *asynq.Server
	cfg     *config.RedisConfig
	log     *zap.Logger
	mu      sync.Mutex
	started bool
}

// NewServer creates a new Redis server with the provided configuration
func NewServer(cfg *config.RedisConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := asynq.NewServer(
		cfg.ClientOpt(),
		asynq.Config{
			Concurrency:    cfg.Workers,
			RetryDelayFunc: retryDelay(cfg.RetryInterval),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Warn("task failed", zap.String("type", task.Type()), zap.Int("retried", retried), zap.Error(err))
			}),
			Queues:          cfg.QueuePriorities,
			StrictPriority:  true,
			Logger:          logger.Sugar(),
			LogLevel:        asynq.WarnLevel,
			ShutdownTimeout: 30 * time.Second,
		},
	)

	return &Server{
		server: srv,
		cfg:    cfg,
		log:    logger,
	}
}

// retryDelay doubles the delay on every retry, starting at one second and
// capped at limit.
func retryDelay(limit time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		delay := time.Second << min(n, 30)
		if delay > limit || delay <= 0 {
			delay = limit
		}

		return delay
	}
}

// Start starts the workers. It does not block.
func (s *Server) Start(handler asynq.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.server.Start(handler); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}

	s.started = true

	return nil
}

// Shutdown waits for active tasks up to the shutdown timeout.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.server.Shutdown()
		s.started = false
	}
}
