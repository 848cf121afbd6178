package fetchers

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gosom/google-maps-review-images/utils"
)

const defaultWidth, defaultHeight = 1920, 1080

type Options struct {
	Headless      bool
	DisableImages bool
	// PoolSize is the number of idle browsers kept for reuse. Zero launches an
	// isolated browser for every Acquire and closes it on Release.
	PoolSize int
	Proxies  *utils.RoundRobin
	Logger   *zap.Logger
}

// BrowserPool hands out chromium instances driven by playwright.
type BrowserPool struct {
	headless      bool
	disableImages bool
	pool          chan *Browser
	proxies       *utils.RoundRobin
	log           *zap.Logger
	launch        func() (*Browser, error)
}

func New(opts Options) *BrowserPool {
	ans := BrowserPool{
		headless:      opts.Headless,
		disableImages: opts.DisableImages,
		pool:          make(chan *Browser, max(0, opts.PoolSize)),
		proxies:       opts.Proxies,
		log:           opts.Logger,
	}

	if ans.log == nil {
		ans.log = zap.NewNop()
	}

	ans.launch = func() (*Browser, error) {
		return newBrowser(ans.headless, ans.disableImages, ans.proxies.Next())
	}

	return &ans
}

// Acquire returns an idle browser from the pool or launches a new one.
func (o *BrowserPool) Acquire(ctx context.Context) (*Browser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ans := <-o.pool:
		return ans, nil
	default:
	}

	b, err := o.launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	o.log.Debug("browser launched")

	return b, nil
}

// Release puts b back in the pool. When the pool is full, reuse is disabled or
// ctx is done the browser is closed.
func (o *BrowserPool) Release(ctx context.Context, b *Browser) {
	if b == nil {
		return
	}

	select {
	case <-ctx.Done():
		o.close(b)
	case o.pool <- b:
	default:
		o.close(b)
	}
}

// Discard closes b without returning it to the pool. Used after a failed
// render, when the browser state is unknown.
func (o *BrowserPool) Discard(b *Browser) {
	if b == nil {
		return
	}

	o.close(b)
}

// Close shuts down every idle browser.
func (o *BrowserPool) Close() error {
	var err error

	for {
		select {
		case b := <-o.pool:
			err = multierr.Append(err, b.Close())
		default:
			return err
		}
	}
}

func (o *BrowserPool) close(b *Browser) {
	if err := b.Close(); err != nil {
		o.log.Warn("browser close failed", zap.Error(err))
	}
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
}

// NewPage opens a tab, closing leftovers of a previous user of the browser.
func (o *Browser) NewPage() (playwright.Page, error) {
	for _, p := range o.ctx.Pages() {
		_ = p.Close()
	}

	return o.ctx.NewPage()
}

func (o *Browser) Close() error {
	var err error

	if o.ctx != nil {
		err = multierr.Append(err, o.ctx.Close())
	}

	if o.browser != nil {
		err = multierr.Append(err, o.browser.Close())
	}

	if o.pw != nil {
		err = multierr.Append(err, o.pw.Stop())
	}

	return err
}

func newBrowser(headless, disableImages bool, proxyURL string) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}

	ans := Browser{pw: pw}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			`--start-maximized`,
			`--no-default-browser-check`,
		},
	}
	if disableImages {
		opts.Args = append(opts.Args, `--blink-settings=imagesEnabled=false`)
	}

	ans.browser, err = pw.Chromium.Launch(opts)
	if err != nil {
		return nil, multierr.Append(err, ans.Close())
	}

	ans.ctx, err = ans.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  defaultWidth,
			Height: defaultHeight,
		},
		Proxy: utils.ToPWProxy(proxyURL),
	})
	if err != nil {
		return nil, multierr.Append(err, ans.Close())
	}

	return &ans, nil
}
