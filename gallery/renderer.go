package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRender wraps every failure that aborts a page render.
var ErrRender = errors.New("render failed")

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultSelectorTimeout   = 30 * time.Second
	defaultClickTimeout      = 10 * time.Second
	defaultExpandSettle      = 2 * time.Second
	expandPollInterval       = 100 * time.Millisecond
)

// RendererConfig holds the selectors and time bounds of a render. Zero values
// fall back to defaults.
type RendererConfig struct {
	Selectors         Selectors
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	ClickTimeout      time.Duration
	// ExpandSettle bounds the wait for new items after the expand click.
	ExpandSettle time.Duration
}

func (c RendererConfig) withDefaults() RendererConfig {
	c.Selectors = c.Selectors.withDefaults()

	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}

	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = defaultSelectorTimeout
	}

	if c.ClickTimeout <= 0 {
		c.ClickTimeout = defaultClickTimeout
	}

	if c.ExpandSettle < 0 {
		c.ExpandSettle = 0
	} else if c.ExpandSettle == 0 {
		c.ExpandSettle = defaultExpandSettle
	}

	return c
}

// Snapshot is the outcome of a render. Found is false when the container was
// attached but is gone by the time it is queried, which is not an error.
type Snapshot struct {
	Markup   string
	Found    bool
	Expanded bool
}

// Renderer loads a review page in a browser and returns the gallery markup.
type Renderer struct {
	opener PageOpener
	cfg    RendererConfig
	log    *zap.Logger
}

// NewRenderer returns a Renderer that opens a fresh page per render.
func NewRenderer(opener PageOpener, cfg RendererConfig, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Renderer{
		opener: opener,
		cfg:    cfg.withDefaults(),
		log:    logger,
	}
}

// Render opens sourceURL, expands the gallery when it has an expand trigger
// and returns the inner markup of the gallery container. The page is closed
// on every return path and as soon as ctx is done.
func (r *Renderer) Render(ctx context.Context, sourceURL string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrRender, sourceURL, err)
	}

	page, err := r.opener.OpenPage(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: open page: %w", ErrRender, sourceURL, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = page.Close()
	})

	defer func() {
		stop()

		if err := page.Close(); err != nil {
			r.log.Debug("page close failed", zap.String("url", sourceURL), zap.Error(err))
		}
	}()

	snap, err := r.render(ctx, page, sourceURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}

		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrRender, sourceURL, err)
	}

	return snap, nil
}

func (r *Renderer) render(ctx context.Context, page Page, sourceURL string) (Snapshot, error) {
	sel := r.cfg.Selectors

	if err := page.Goto(sourceURL, r.bound(ctx, r.cfg.NavigationTimeout)); err != nil {
		return Snapshot{}, fmt.Errorf("navigate: %w", err)
	}

	if err := page.WaitAttached(sel.Container, r.bound(ctx, r.cfg.SelectorTimeout)); err != nil {
		return Snapshot{}, fmt.Errorf("wait for gallery: %w", err)
	}

	n, err := page.Count(sel.Container)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query gallery: %w", err)
	}

	if n == 0 {
		return Snapshot{}, nil
	}

	var snap Snapshot

	triggers, err := page.Count(sel.scopedTrigger())
	if err != nil {
		return Snapshot{}, fmt.Errorf("query expand trigger: %w", err)
	}

	if triggers > 0 {
		if err := r.expand(ctx, page); err != nil {
			return Snapshot{}, err
		}

		snap.Expanded = true
	}

	// the click can re-render the container, so it is looked up again
	n, err = page.Count(sel.Container)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query gallery: %w", err)
	}

	if n == 0 {
		return Snapshot{}, nil
	}

	snap.Markup, err = page.InnerHTML(sel.Container)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read gallery markup: %w", err)
	}

	snap.Found = true

	return snap, nil
}

func (r *Renderer) expand(ctx context.Context, page Page) error {
	sel := r.cfg.Selectors
	items := sel.Container + " " + sel.Item

	before, err := page.Count(items)
	if err != nil {
		return fmt.Errorf("count gallery items: %w", err)
	}

	if err := page.Click(sel.scopedTrigger(), r.bound(ctx, r.cfg.ClickTimeout)); err != nil {
		return fmt.Errorf("click expand trigger: %w", err)
	}

	if r.cfg.ExpandSettle == 0 {
		return nil
	}

	// items are inserted lazily after the click; give them a moment to land
	deadline := time.NewTimer(r.bound(ctx, r.cfg.ExpandSettle))
	defer deadline.Stop()

	ticker := time.NewTicker(expandPollInterval)
	defer ticker.Stop()

	for {
		after, err := page.Count(items)
		if err != nil {
			return fmt.Errorf("count gallery items: %w", err)
		}

		if after > before {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
}

// bound shortens d to what is left of the ctx deadline.
func (r *Renderer) bound(ctx context.Context, d time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return d
	}

	left := time.Until(dl)
	if left <= 0 {
		return time.Millisecond
	}

	return min(d, left)
}
