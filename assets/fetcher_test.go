package assets_test

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/google-maps-review-images/assets"
)

func sequence(prefix string) assets.IDSource {
	var n atomic.Int64

	return assets.IDFunc(func() string {
		return fmt.Sprintf("%s%04d", prefix, n.Add(1))
	})
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/img1.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("img1-bytes"))
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestFetchStoresImage(t *testing.T) {
	srv := imageServer(t)
	root := t.TempDir()

	f := assets.NewFetcher(srv.Client(), assets.NewFileStore(root), assets.WithIDSource(sequence("id")))

	asset, err := f.Fetch(context.Background(), "v1", srv.URL+"/img1.png")
	require.NoError(t, err)

	assert.Equal(t, "v1", asset.EntityID)
	assert.Equal(t, "v1/id0001.png", asset.Key)
	assert.Equal(t, filepath.Join(root, "v1", "id0001.png"), asset.Location)
	assert.EqualValues(t, len("img1-bytes"), asset.Bytes)

	data, err := os.ReadFile(asset.Location)
	require.NoError(t, err)
	assert.Equal(t, "img1-bytes", string(data))
}

func TestFetchNon200WritesNothing(t *testing.T) {
	srv := imageServer(t)
	root := t.TempDir()

	f := assets.NewFetcher(srv.Client(), assets.NewFileStore(root))

	_, err := f.Fetch(context.Background(), "v1", srv.URL+"/missing.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, assets.ErrUnexpectedStatus)

	var se *assets.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = os.Stat(filepath.Join(root, "v1"))
	assert.True(t, os.IsNotExist(err), "no directory or file may be created for a failed fetch")
}

func TestFetchTransportErrorWritesNothing(t *testing.T) {
	srv := imageServer(t)
	addr := srv.URL
	srv.Close()

	root := t.TempDir()
	f := assets.NewFetcher(http.DefaultClient, assets.NewFileStore(root))

	_, err := f.Fetch(context.Background(), "v1", addr+"/img1.png")
	require.Error(t, err)
	assert.True(t, assets.Retryable(err))

	_, err = os.Stat(filepath.Join(root, "v1"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchSizeLimit(t *testing.T) {
	srv := imageServer(t)
	root := t.TempDir()

	f := assets.NewFetcher(srv.Client(), assets.NewFileStore(root), assets.WithMaxBytes(1024))

	_, err := f.Fetch(context.Background(), "v1", srv.URL+"/big.png")
	assert.ErrorIs(t, err, assets.ErrTooLarge)
}

func TestFetchRetriesNameCollision(t *testing.T) {
	srv := imageServer(t)
	root := t.TempDir()

	names := []string{"dup", "dup", "fresh"}

	var i atomic.Int64

	ids := assets.IDFunc(func() string {
		return names[int(i.Add(1)-1)%len(names)]
	})

	f := assets.NewFetcher(srv.Client(), assets.NewFileStore(root), assets.WithIDSource(ids), assets.WithExt("jpg"))

	first, err := f.Fetch(context.Background(), "v1", srv.URL+"/img1.png")
	require.NoError(t, err)
	assert.Equal(t, "v1/dup.jpg", first.Key)

	second, err := f.Fetch(context.Background(), "v1", srv.URL+"/img1.png")
	require.NoError(t, err)
	assert.Equal(t, "v1/fresh.jpg", second.Key)
}

func TestFetchRejectsBadEntity(t *testing.T) {
	f := assets.NewFetcher(nil, assets.NewFileStore(t.TempDir()))

	_, err := f.Fetch(context.Background(), "../x", "http://fixture/img1.png")
	assert.Error(t, err)
}

func TestHTTPClientTrustsCABundle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "secure")
	}))
	defer srv.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, block, 0o600))

	plain, err := assets.NewHTTPClient(assets.HTTPClientOptions{})
	require.NoError(t, err)

	_, err = plain.Get(srv.URL)
	require.Error(t, err, "self signed server must not be trusted without the bundle")

	client, err := assets.NewHTTPClient(assets.HTTPClientOptions{CABundle: bundle})
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "secure", string(body))
}

func TestHTTPClientBadBundle(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(bundle, []byte("not a cert"), 0o600))

	_, err := assets.NewHTTPClient(assets.HTTPClientOptions{CABundle: bundle})
	assert.Error(t, err)

	_, err = assets.NewHTTPClient(assets.HTTPClientOptions{CABundle: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: &assets.StatusError{StatusCode: http.StatusNotFound}, want: false},
		{name: "server error", err: &assets.StatusError{StatusCode: http.StatusBadGateway}, want: true},
		{name: "throttled", err: &assets.StatusError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "too large", err: assets.ErrTooLarge, want: false},
		{name: "short body", err: fmt.Errorf("read: %w", io.ErrUnexpectedEOF), want: true},
		{name: "other", err: errors.New("disk full"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assets.Retryable(tt.err))
		})
	}
}
