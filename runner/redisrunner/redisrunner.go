// Package redisrunner distributes targets over Redis: a producer enqueues one
// task per page and workers harvest them.
package redisrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/harvester"
	"github.com/gosom/google-maps-review-images/redis"
	"github.com/gosom/google-maps-review-images/redis/config"
	"github.com/gosom/google-maps-review-images/redis/tasks"
	"github.com/gosom/google-maps-review-images/runner"
	"github.com/gosom/google-maps-review-images/tlmt"
)

const healthInterval = 30 * time.Second

// Enqueuer is the part of the redis client the producer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func redisConfig(cfg *runner.Config) (*config.RedisConfig, error) {
	rcfg, err := config.Parse(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	rcfg.Workers = cfg.RedisWorkers
	rcfg.MaxRetries = cfg.RedisMaxRetries
	rcfg.TaskTimeout = cfg.PageTimeout + time.Minute

	if err := rcfg.Validate(); err != nil {
		return nil, err
	}

	return rcfg, nil
}

type producer struct {
	cfg    *runner.Config
	rcfg   *config.RedisConfig
	client *redis.Client
	log    *zap.Logger
}

// NewProducer returns a runner that enqueues every target of the input file.
func NewProducer(ctx context.Context, cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeRedisProduce {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	rcfg, err := redisConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := redis.NewClient(ctx, rcfg)
	if err != nil {
		return nil, err
	}

	ans := producer{
		cfg:    cfg,
		rcfg:   rcfg,
		client: client,
		log:    logger,
	}

	return &ans, nil
}

func (p *producer) Run(ctx context.Context) error {
	targets, err := runner.ReadTargetsFile(p.cfg.InputFile, p.log)
	if err != nil {
		return err
	}

	n, err := Produce(ctx, p.client, targets,
		asynq.Queue(config.QueueDefault),
		asynq.MaxRetry(p.rcfg.MaxRetries),
		asynq.Timeout(p.rcfg.TaskTimeout),
		asynq.Retention(p.rcfg.RetentionPeriod),
	)

	p.log.Info("targets enqueued", zap.Int("count", n), zap.Int("total", len(targets)))

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("redis_producer", map[string]any{"targets": n}))

	return err
}

func (p *producer) Close(context.Context) error {
	return p.client.Close()
}

// Produce enqueues one harvest task per target and returns how many were
// enqueued before the first error.
func Produce(ctx context.Context, q Enqueuer, targets []entities.TargetPage, opts ...asynq.Option) (int, error) {
	for i, target := range targets {
		task, err := tasks.NewHarvestTask(target)
		if err != nil {
			return i, err
		}

		if _, err := q.Enqueue(ctx, task, opts...); err != nil {
			return i, fmt.Errorf("target %s: %w", target.EntityID, err)
		}
	}

	return len(targets), nil
}

type worker struct {
	rcfg     *config.RedisConfig
	server   *redis.Server
	client   *redis.Client
	pipeline *runner.Pipeline
	log      *zap.Logger
}

// NewWorker returns a runner that harvests the pages enqueued in Redis until
// its context is cancelled.
func NewWorker(ctx context.Context, cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeRedisWorker {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	rcfg, err := redisConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := redis.NewClient(ctx, rcfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := runner.NewPipeline(cfg, cfg.Store(logger), logger)
	if err != nil {
		return nil, multierr.Append(err, client.Close())
	}

	ans := worker{
		rcfg:     rcfg,
		server:   redis.NewServer(rcfg, logger.Named("asynq")),
		client:   client,
		pipeline: pipeline,
		log:      logger,
	}

	return &ans, nil
}

func (w *worker) Run(ctx context.Context) error {
	handler := tasks.NewHandler(w.pipeline.Harvester,
		tasks.WithTaskTimeout(w.rcfg.TaskTimeout),
		tasks.WithLogger(w.log),
		tasks.WithResultHook(func(res *harvester.PageResult) {
			_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("redis_worker_page", map[string]any{
				"ok":            res.OK(),
				"images_saved":  res.ImagesSaved,
				"images_failed": res.ImagesFailed,
			}))
		}),
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeHarvestPage, handler)
	mux.Handle(tasks.TypeHealthCheck, handler)

	if err := w.server.Start(mux); err != nil {
		return err
	}

	w.log.Info("worker started", zap.Int("workers", w.rcfg.Workers), zap.String("redis", w.rcfg.GetRedisAddr()))

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.client.IsHealthy(ctx) {
				w.log.Warn("redis is not answering pings")
			}
		}
	}
}

func (w *worker) Close(context.Context) error {
	w.server.Shutdown()

	return multierr.Combine(w.client.Close(), w.pipeline.Close())
}
