// Package tasks defines the asynq tasks of the harvester and their handler.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/harvester"
)

// PageHarvester runs the pipeline for one page.
type PageHarvester interface {
	Harvest(ctx context.Context, target entities.TargetPage) *harvester.PageResult
}

// Handler implements asynq.Handler
type Handler struct {
	harvester   PageHarvester
	taskTimeout time.Duration
	log         *zap.Logger
	onResult    func(*harvester.PageResult)
}

// HandlerOption is a function that configures a Handler
type HandlerOption func(*Handler)

// WithTaskTimeout sets the timeout for task processing
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		if timeout > 0 {
			h.taskTimeout = timeout
		}
	}
}

func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithResultHook is called with every page result, failed or not.
func WithResultHook(fn func(*harvester.PageResult)) HandlerOption {
	return func(h *Handler) {
		h.onResult = fn
	}
}

// NewHandler creates a new task handler with the provided options
func NewHandler(h PageHarvester, opts ...HandlerOption) *Handler {
	ans := Handler{
		harvester:   h,
		taskTimeout: 10 * time.Minute,
		log:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

// ProcessTask processes a task based on its type
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeHarvestPage:
		return h.processHarvestTask(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type %q: %w", task.Type(), asynq.SkipRetry)
	}
}

// processHarvestTask fails the task only when the page aborted, so asynq
// retries renders but never repeats a page whose images were attempted.
func (h *Handler) processHarvestTask(ctx context.Context, task *asynq.Task) error {
	var payload HarvestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal harvest payload: %v: %w", err, asynq.SkipRetry)
	}

	target := payload.Target()
	if err := target.Validate(); err != nil {
		return fmt.Errorf("harvest payload: %v: %w", err, asynq.SkipRetry)
	}

	res := h.harvester.Harvest(ctx, target)

	if h.onResult != nil {
		h.onResult(res)
	}

	if !res.OK() {
		return fmt.Errorf("harvest %s: %w", target.EntityID, res.RenderError)
	}

	h.log.Debug("task done",
		zap.String("entity_id", target.EntityID),
		zap.Int("saved", res.ImagesSaved),
		zap.Int("failed", res.ImagesFailed),
	)

	return nil
}
