package runner

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/assets"
	"github.com/gosom/google-maps-review-images/fetchers"
	"github.com/gosom/google-maps-review-images/gallery"
	"github.com/gosom/google-maps-review-images/harvester"
	"github.com/gosom/google-maps-review-images/utils"
)

const maxRetryBackoff = 30 * time.Second

// Pipeline is a harvester together with the browsers it drives.
type Pipeline struct {
	Harvester *harvester.Harvester
	browsers  *fetchers.BrowserPool
}

// NewPipeline wires renderer, extractor and fetcher from cfg. Images go to
// store.
func NewPipeline(cfg *Config, store assets.Store, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	proxies := utils.NewRoundRobin(cfg.Proxies)

	client, err := assets.NewHTTPClient(assets.HTTPClientOptions{
		CABundle: cfg.CABundle,
		Proxies:  proxies,
		Timeout:  cfg.FetchTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	browsers := fetchers.New(fetchers.Options{
		Headless:      !cfg.Debug,
		DisableImages: true,
		PoolSize:      cfg.BrowserReuse,
		Proxies:       proxies,
		Logger:        logger.Named("browser"),
	})

	renderer := gallery.NewRenderer(gallery.NewPlaywrightOpener(browsers), gallery.RendererConfig{
		NavigationTimeout: cfg.NavigationTimeout,
		SelectorTimeout:   cfg.SelectorTimeout,
	}, logger.Named("renderer"))

	fetcher := assets.NewFetcher(client, store, assets.WithExt(cfg.Ext))

	hcfg := harvester.Config{
		Concurrency: cfg.Concurrency,
		PageTimeout: cfg.PageTimeout,
		Retry: harvester.RetryPolicy{
			MaxAttempts: cfg.Retries,
			Backoff:     cfg.RetryBackoff,
			MaxBackoff:  maxRetryBackoff,
			Retryable:   assets.Retryable,
		},
	}

	ans := Pipeline{
		Harvester: harvester.New(renderer, gallery.NewExtractor(gallery.DefaultSelectors()), fetcher, hcfg, logger),
		browsers:  browsers,
	}

	return &ans, nil
}

// Close shuts down every pooled browser.
func (p *Pipeline) Close() error {
	return p.browsers.Close()
}

// Store returns the local image store, mirrored to S3 when a bucket and an
// uploader are configured.
func (c *Config) Store(logger *zap.Logger) assets.Store {
	local := assets.NewFileStore(c.ImagesDir)

	if c.S3Bucket == "" || c.S3Uploader == nil {
		return local
	}

	return MirrorToS3(local, c.S3Uploader, c.S3Bucket, c.S3Prefix, logger)
}

// MirrorToS3 writes to primary first and copies every stored image to bucket.
// Mirror failures are logged and do not fail the download.
func MirrorToS3(primary assets.Store, uploader S3Uploader, bucket, prefix string, logger *zap.Logger) assets.Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	mirror := assets.NewS3Store(uploader, bucket, prefix)

	return assets.NewMultiStore(primary, []assets.Store{mirror}, func(key string, err error) {
		logger.Warn("s3 mirror failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
	})
}
