package exiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/harvester"
)

const defaultInterval = 5 * time.Second

// Progress is a snapshot of a batch.
type Progress struct {
	Targets      int
	PagesDone    int
	PagesFailed  int
	ImagesSaved  int
	ImagesFailed int
}

// Completed counts pages that reached a final state.
func (p Progress) Completed() int {
	return p.PagesDone + p.PagesFailed
}

type Exiter interface {
	SetTargetCount(int)
	SetCancelFunc(context.CancelFunc)
	Record(*harvester.PageResult)
	Progress() Progress
	Run(context.Context)
}

type Option func(*exiter)

func WithInterval(d time.Duration) Option {
	return func(e *exiter) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *exiter) {
		if l != nil {
			e.log = l
		}
	}
}

type exiter struct {
	progress   Progress
	cancelFunc context.CancelFunc
	interval   time.Duration
	log        *zap.Logger
	mu         sync.Mutex
	done       chan struct{}
	doneOnce   sync.Once
}

func New(opts ...Option) Exiter {
	ans := exiter{
		interval: defaultInterval,
		log:      zap.NewNop(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

func (e *exiter) SetTargetCount(val int) {
	e.mu.Lock()
	e.progress.Targets = val
	e.mu.Unlock()

	e.checkDone()
}

func (e *exiter) SetCancelFunc(fn context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelFunc = fn
}

// Record adds the outcome of one page.
func (e *exiter) Record(res *harvester.PageResult) {
	e.mu.Lock()

	if res.OK() {
		e.progress.PagesDone++
	} else {
		e.progress.PagesFailed++
	}

	e.progress.ImagesSaved += res.ImagesSaved
	e.progress.ImagesFailed += res.ImagesFailed

	e.mu.Unlock()

	e.checkDone()
}

func (e *exiter) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.progress
}

// Run logs progress until every target is recorded, then cancels the batch.
func (e *exiter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			e.logProgress("batch finished")

			e.mu.Lock()
			cancel := e.cancelFunc
			e.mu.Unlock()

			if cancel != nil {
				cancel()
			}

			return
		case <-ticker.C:
			e.logProgress("batch progress")
		}
	}
}

func (e *exiter) logProgress(msg string) {
	p := e.Progress()

	e.log.Info(msg,
		zap.Int("targets", p.Targets),
		zap.Int("pages_done", p.PagesDone),
		zap.Int("pages_failed", p.PagesFailed),
		zap.Int("images_saved", p.ImagesSaved),
		zap.Int("images_failed", p.ImagesFailed),
	)
}

func (e *exiter) checkDone() {
	p := e.Progress()

	if p.Targets > 0 && p.Completed() >= p.Targets {
		e.doneOnce.Do(func() {
			close(e.done)
		})
	}
}
