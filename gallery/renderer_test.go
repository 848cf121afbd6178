package gallery_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/google-maps-review-images/gallery"
)

const (
	containerSel = ".KtCyie"
	triggerSel   = ".KtCyie div.Tap5If"
	itemsSel     = ".KtCyie button.Tya61d"
)

func item(u string) string {
	return `<button class="Tya61d" style="background-image: url(&quot;` + u + `&quot;);"></button>`
}

type fakePage struct {
	mu sync.Mutex

	gotoErr  error
	waitErr  error
	clickErr error

	container bool
	trigger   bool
	items     []string
	hidden    []string
	// revealAfter delays the insertion of hidden items by that many item counts
	revealAfter int

	clicked int
	closed  int
	calls   []string
}

func (p *fakePage) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePage) Goto(string, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("goto")

	return p.gotoErr
}

func (p *fakePage) WaitAttached(string, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("wait")

	return p.waitErr
}

func (p *fakePage) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("count " + selector)

	switch selector {
	case containerSel:
		if p.container {
			return 1, nil
		}
	case triggerSel:
		if p.trigger {
			return 1, nil
		}
	case itemsSel:
		if p.clicked > 0 && len(p.hidden) > 0 {
			if p.revealAfter > 0 {
				p.revealAfter--
			} else {
				p.items = append(p.items, p.hidden...)
				p.hidden = nil
			}
		}

		return len(p.items), nil
	}

	return 0, nil
}

func (p *fakePage) Click(string, time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("click")

	if p.clickErr != nil {
		return p.clickErr
	}

	p.clicked++
	p.trigger = false

	return nil
}

func (p *fakePage) InnerHTML(string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.record("innerhtml")

	return strings.Join(p.items, ""), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed++

	return nil
}

type fakeOpener struct {
	page  *fakePage
	err   error
	opens int
}

func (o *fakeOpener) OpenPage(context.Context) (gallery.Page, error) {
	o.opens++

	if o.err != nil {
		return nil, o.err
	}

	return o.page, nil
}

func newRenderer(opener gallery.PageOpener) *gallery.Renderer {
	return gallery.NewRenderer(opener, gallery.RendererConfig{ExpandSettle: time.Second}, nil)
}

func TestRenderSelectorTimeoutFails(t *testing.T) {
	page := &fakePage{waitErr: gallery.ErrSelectorTimeout}
	r := newRenderer(&fakeOpener{page: page})

	snap, err := r.Render(context.Background(), "http://fixture/page")
	require.Error(t, err)
	assert.ErrorIs(t, err, gallery.ErrRender)
	assert.ErrorIs(t, err, gallery.ErrSelectorTimeout)
	assert.False(t, snap.Found)
	assert.Empty(t, snap.Markup)
	assert.Equal(t, 1, page.closed)
	assert.NotContains(t, page.calls, "innerhtml")
}

func TestRenderNoGallery(t *testing.T) {
	page := &fakePage{}
	r := newRenderer(&fakeOpener{page: page})

	snap, err := r.Render(context.Background(), "http://fixture/page")
	require.NoError(t, err)
	assert.False(t, snap.Found)
	assert.Equal(t, 1, page.closed)
}

func TestRenderWithoutExpandTrigger(t *testing.T) {
	page := &fakePage{
		container: true,
		items:     []string{item("http://fixture/img1.png")},
	}
	r := newRenderer(&fakeOpener{page: page})

	snap, err := r.Render(context.Background(), "http://fixture/page")
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.False(t, snap.Expanded)
	assert.Equal(t, 0, page.clicked)
	assert.Contains(t, snap.Markup, "img1.png")
	assert.Equal(t, 1, page.closed)
}

func TestRenderClicksExpandTriggerBeforeSnapshot(t *testing.T) {
	page := &fakePage{
		container: true,
		trigger:   true,
		items:     []string{item("http://fixture/img1.png")},
		hidden: []string{
			item("http://fixture/img2.png"),
			item("http://fixture/img3.png"),
		},
	}
	r := newRenderer(&fakeOpener{page: page})

	snap, err := r.Render(context.Background(), "http://fixture/page")
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.True(t, snap.Expanded)
	assert.Equal(t, 1, page.clicked)

	clickAt := slices.Index(page.calls, "click")
	htmlAt := slices.Index(page.calls, "innerhtml")
	require.NotEqual(t, -1, clickAt)
	assert.Less(t, clickAt, htmlAt)

	urls, err := gallery.NewExtractor(gallery.DefaultSelectors()).Extract(snap.Markup)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://fixture/img1.png",
		"http://fixture/img2.png",
		"http://fixture/img3.png",
	}, urls)
}

func TestRenderWaitsForLazyItems(t *testing.T) {
	page := &fakePage{
		container:   true,
		trigger:     true,
		hidden:      []string{item("http://fixture/late.png")},
		revealAfter: 2,
	}
	r := newRenderer(&fakeOpener{page: page})

	snap, err := r.Render(context.Background(), "http://fixture/page")
	require.NoError(t, err)
	assert.Contains(t, snap.Markup, "late.png")
}

func TestRenderErrorsCloseThePage(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		page *fakePage
	}{
		{name: "navigation", page: &fakePage{gotoErr: boom}},
		{name: "wait", page: &fakePage{waitErr: boom}},
		{name: "click", page: &fakePage{container: true, trigger: true, clickErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRenderer(&fakeOpener{page: tt.page})

			_, err := r.Render(context.Background(), "http://fixture/page")
			require.Error(t, err)
			assert.ErrorIs(t, err, gallery.ErrRender)
			assert.ErrorIs(t, err, boom)
			assert.GreaterOrEqual(t, tt.page.closed, 1)
		})
	}
}

func TestRenderOpenError(t *testing.T) {
	boom := errors.New("no browser")
	r := newRenderer(&fakeOpener{err: boom})

	_, err := r.Render(context.Background(), "http://fixture/page")
	assert.ErrorIs(t, err, gallery.ErrRender)
	assert.ErrorIs(t, err, boom)
}

func TestRenderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opener := &fakeOpener{page: &fakePage{}}
	r := newRenderer(opener)

	_, err := r.Render(ctx, "http://fixture/page")
	assert.ErrorIs(t, err, gallery.ErrRender)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, opener.opens)
}
