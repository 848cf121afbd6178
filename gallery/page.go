package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/gosom/google-maps-review-images/fetchers"
)

// ErrSelectorTimeout is returned by Page.WaitAttached when the selector did
// not appear before the deadline.
var ErrSelectorTimeout = errors.New("selector wait timed out")

// Page is the part of a browser tab the renderer drives.
type Page interface {
	Goto(url string, timeout time.Duration) error
	WaitAttached(selector string, timeout time.Duration) error
	Count(selector string) (int, error)
	Click(selector string, timeout time.Duration) error
	InnerHTML(selector string) (string, error)
	// Close releases the tab and the browser behind it.
	Close() error
}

// PageOpener provides a fresh Page for every render.
type PageOpener interface {
	OpenPage(ctx context.Context) (Page, error)
}

type playwrightOpener struct {
	browsers *fetchers.BrowserPool
}

// NewPlaywrightOpener opens pages on browsers taken from pool.
func NewPlaywrightOpener(pool *fetchers.BrowserPool) PageOpener {
	return &playwrightOpener{browsers: pool}
}

func (o *playwrightOpener) OpenPage(ctx context.Context) (Page, error) {
	b, err := o.browsers.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage()
	if err != nil {
		o.browsers.Discard(b)

		return nil, fmt.Errorf("new page: %w", err)
	}

	ans := pwPage{
		page:     page,
		browser:  b,
		browsers: o.browsers,
	}

	return &ans, nil
}

type pwPage struct {
	page     playwright.Page
	browser  *fetchers.Browser
	browsers *fetchers.BrowserPool
	failed   atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   toMillis(timeout),
	})

	return p.track(err)
}

func (p *pwPage) WaitAttached(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: toMillis(timeout),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrSelectorTimeout, selector)
	}

	return p.track(err)
}

func (p *pwPage) Count(selector string) (int, error) {
	n, err := p.page.Locator(selector).Count()

	return n, p.track(err)
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: toMillis(timeout),
	})

	return p.track(err)
}

func (p *pwPage) InnerHTML(selector string) (string, error) {
	html, err := p.page.Locator(selector).First().InnerHTML()

	return html, p.track(err)
}

// Close is safe to call more than once and from another goroutine. A browser
// that saw an error is not handed back to the pool.
func (p *pwPage) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.page.Close()

		if p.failed.Load() || p.closeErr != nil {
			p.browsers.Discard(p.browser)
		} else {
			p.browsers.Release(context.Background(), p.browser)
		}
	})

	return p.closeErr
}

func (p *pwPage) track(err error) error {
	if err != nil {
		p.failed.Store(true)
	}

	return err
}

// toMillis converts to the playwright timeout unit. Zero keeps the playwright
// default.
func toMillis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}

	return playwright.Float(float64(d.Milliseconds()))
}
