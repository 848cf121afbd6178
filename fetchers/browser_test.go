package fetchers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(size int) (*BrowserPool, *int) {
	launched := 0

	p := New(Options{PoolSize: size})
	p.launch = func() (*Browser, error) {
		launched++
		return &Browser{}, nil
	}

	return p, &launched
}

func TestBrowserPoolWithoutReuse(t *testing.T) {
	ctx := context.Background()
	p, launched := newTestPool(0)

	b1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, b1)

	b2, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, b2)

	assert.Equal(t, 2, *launched)
	assert.NotSame(t, b1, b2)
	assert.NoError(t, p.Close())
}

func TestBrowserPoolReuse(t *testing.T) {
	ctx := context.Background()
	p, launched := newTestPool(1)

	b1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, b1)

	b2, err := p.Acquire(ctx)
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, 1, *launched)

	p.Discard(b2)

	b3, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, b2, b3)
	assert.Equal(t, 2, *launched)
}

func TestBrowserPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, launched := newTestPool(1)

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, *launched)
}

func TestBrowserPoolLaunchError(t *testing.T) {
	p := New(Options{})
	p.launch = func() (*Browser, error) {
		return nil, errors.New("no chromium")
	}

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch browser")
}
