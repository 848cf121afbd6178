package harvester

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/gallery"
)

type Renderer interface {
	Render(ctx context.Context, sourceURL string) (gallery.Snapshot, error)
}

type Extractor interface {
	Extract(markup string) ([]string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, entityID, url string) (entities.StoredAsset, error)
}

// RetryPolicy controls repeated downloads of a failed image. The zero value
// makes a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// Retryable decides whether an error deserves another attempt. Nil retries
	// every error.
	Retryable func(error) bool
}

func (p RetryPolicy) attempts() int {
	return max(1, p.MaxAttempts)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff << (attempt - 1)
	if p.MaxBackoff > 0 && (d > p.MaxBackoff || d <= 0) {
		d = p.MaxBackoff
	}

	return d
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}

	return p.Retryable(err)
}

type Config struct {
	// Concurrency caps the parallel downloads of one page. Zero means one
	// goroutine per image.
	Concurrency int
	// PageTimeout bounds render, extraction and downloads of one page.
	PageTimeout time.Duration
	Retry       RetryPolicy
}

// Harvester renders a review page, extracts its gallery urls and downloads
// every image concurrently.
type Harvester struct {
	renderer  Renderer
	extractor Extractor
	fetcher   Fetcher
	cfg       Config
	log       *zap.Logger
}

func New(renderer Renderer, extractor Extractor, fetcher Fetcher, cfg Config, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Harvester{
		renderer:  renderer,
		extractor: extractor,
		fetcher:   fetcher,
		cfg:       cfg,
		log:       logger,
	}
}

// Harvest runs the pipeline for one target. Download failures are recorded per
// item and never abort the page.
func (h *Harvester) Harvest(ctx context.Context, target entities.TargetPage) *PageResult {
	ans := PageResult{
		EntityID:  target.EntityID,
		SourceURL: target.SourceURL,
		State:     StateStart,
		StartedAt: time.Now().UTC(),
	}

	log := h.log.With(zap.String("entity_id", target.EntityID), zap.String("url", target.SourceURL))

	defer func() {
		ans.Duration = time.Since(ans.StartedAt)
	}()

	if err := target.Validate(); err != nil {
		return h.abort(log, &ans, err)
	}

	if h.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.cfg.PageTimeout)
		defer cancel()
	}

	ans.State = StateRendering

	snap, err := h.renderer.Render(ctx, target.SourceURL)
	if err != nil {
		return h.abort(log, &ans, err)
	}

	if !snap.Found {
		ans.NoGallery = true
		ans.State = StateDone

		log.Info("no gallery on page")

		return &ans
	}

	ans.Expanded = snap.Expanded
	ans.State = StateExtract

	urls, err := h.extractor.Extract(snap.Markup)
	if err != nil {
		return h.abort(log, &ans, fmt.Errorf("extract: %w", err))
	}

	refs := make([]entities.ImageRef, len(urls))
	for i, u := range urls {
		refs[i] = entities.ImageRef{EntityID: target.EntityID, URL: u, Index: i}
	}

	ans.ImagesFound = len(refs)
	ans.State = StateFetching
	ans.Items = h.fetchAll(ctx, log, refs)

	for _, it := range ans.Items {
		if it.Saved() {
			ans.ImagesSaved++
		} else {
			ans.ImagesFailed++
		}
	}

	ans.State = StateDone

	log.Info("page harvested",
		zap.Bool("expanded", ans.Expanded),
		zap.Int("found", ans.ImagesFound),
		zap.Int("saved", ans.ImagesSaved),
		zap.Int("failed", ans.ImagesFailed),
	)

	return &ans
}

func (h *Harvester) abort(log *zap.Logger, ans *PageResult, err error) *PageResult {
	ans.State = StateAborted
	ans.RenderError = err

	log.Error("page aborted", zap.Error(err))

	return ans
}

func (h *Harvester) fetchAll(ctx context.Context, log *zap.Logger, refs []entities.ImageRef) []ItemResult {
	items := make([]ItemResult, len(refs))

	var g errgroup.Group
	if h.cfg.Concurrency > 0 {
		g.SetLimit(h.cfg.Concurrency)
	}

	for i, ref := range refs {
		g.Go(func() error {
			items[i] = h.fetchOne(ctx, ref)

			if items[i].Err != nil {
				log.Warn("image download failed",
					zap.String("image_url", ref.URL),
					zap.Int("attempts", items[i].Attempts),
					zap.Error(items[i].Err),
				)
			}

			// failures stay in the item so siblings keep running
			return nil
		})
	}

	_ = g.Wait()

	return items
}

func (h *Harvester) fetchOne(ctx context.Context, ref entities.ImageRef) ItemResult {
	ans := ItemResult{Ref: ref}
	policy := h.cfg.Retry

	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		ans.Attempts = attempt

		asset, err := h.fetcher.Fetch(ctx, ref.EntityID, ref.URL)
		if err == nil {
			ans.Asset = &asset
			ans.Err = nil

			return ans
		}

		ans.Err = err

		if attempt == policy.attempts() || !policy.retryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return ans
		case <-time.After(policy.delay(attempt)):
		}
	}

	return ans
}
