package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/runner"
	"github.com/gosom/google-maps-review-images/runner/filerunner"
	"github.com/gosom/google-maps-review-images/runner/installplaywright"
	"github.com/gosom/google-maps-review-images/runner/lambdaaws"
	"github.com/gosom/google-maps-review-images/runner/redisrunner"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())

	cfg := runner.ParseConfig()
	runner.Banner(cfg)

	logger, err := runner.NewLogger(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		logger.Info("received signal, shutting down")

		cancel()
	}()

	os.Exit(run(ctx, cancel, cfg, logger))
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *runner.Config, logger *zap.Logger) int {
	defer cancel()
	defer func() { _ = logger.Sync() }()
	defer runner.Telemetry().Close()

	runnerInstance, err := runnerFactory(ctx, cfg, logger)
	if err != nil {
		logger.Error("cannot start", zap.Error(err))

		return 1
	}

	defer func() {
		if err := runnerInstance.Close(context.Background()); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.Error(err))

		return 1
	}

	return 0
}

func runnerFactory(ctx context.Context, cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeFile:
		return filerunner.New(cfg, logger)
	case runner.RunModeRedisProduce:
		return redisrunner.NewProducer(ctx, cfg, logger)
	case runner.RunModeRedisWorker:
		return redisrunner.NewWorker(ctx, cfg, logger)
	case runner.RunModeInstallPlaywright:
		return installplaywright.New(cfg, logger)
	case runner.RunModeAwsLambda:
		return lambdaaws.New(cfg, logger)
	case runner.RunModeAwsLambdaInvoker:
		return lambdaaws.NewInvoker(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
