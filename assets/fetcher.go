package assets

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/utils"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrTooLarge         = errors.New("asset exceeds size limit")
)

const (
	DefaultExt        = "png"
	defaultMaxBytes   = 32 << 20
	maxNameCollisions = 3
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// StatusError reports a response other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrUnexpectedStatus, e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Retryable tells whether another attempt at a failed fetch may succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}

type HTTPClientOptions struct {
	// CABundle is a PEM file added to the system roots.
	CABundle string
	Proxies  *utils.RoundRobin
	Timeout  time.Duration
}

// NewHTTPClient builds the client used for image downloads. Without explicit
// proxies the environment proxy settings apply.
func NewHTTPClient(opts HTTPClientOptions) (*http.Client, error) {
	roots, err := x509.SystemCertPool()
	if err != nil || roots == nil {
		roots = x509.NewCertPool()
	}

	if opts.CABundle != "" {
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}

		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s has no certificates", opts.CABundle)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = opts.Proxies.HTTPProxy
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	}

	ans := http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}

	return &ans, nil
}

type FetcherOption func(*Fetcher)

func WithIDSource(ids IDSource) FetcherOption {
	return func(f *Fetcher) {
		f.ids = ids
	}
}

func WithExt(ext string) FetcherOption {
	return func(f *Fetcher) {
		if ext != "" {
			f.ext = ext
		}
	}
}

func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// Fetcher downloads one image and stores it under <entity_id>/<id>.<ext>.
type Fetcher struct {
	client   *http.Client
	store    Store
	ids      IDSource
	ext      string
	maxBytes int64
}

func NewFetcher(client *http.Client, store Store, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	ans := Fetcher{
		client:   client,
		store:    store,
		ids:      UUIDSource(),
		ext:      DefaultExt,
		maxBytes: defaultMaxBytes,
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

// Fetch downloads rawURL and stores the body for entityID. Only a 200 answer
// is stored; nothing is written for any failure.
func (f *Fetcher) Fetch(ctx context.Context, entityID, rawURL string) (entities.StoredAsset, error) {
	if err := entities.ValidateEntityID(entityID); err != nil {
		return entities.StoredAsset{}, err
	}

	data, err := f.download(ctx, rawURL)
	if err != nil {
		return entities.StoredAsset{}, err
	}

	for range maxNameCollisions {
		key := entities.AssetKey(entityID, f.ids.NewID(), f.ext)

		location, err := f.store.Put(ctx, key, data)
		if errors.Is(err, ErrAssetExists) {
			continue
		}

		if err != nil {
			return entities.StoredAsset{}, fmt.Errorf("store %s: %w", key, err)
		}

		ans := entities.StoredAsset{
			EntityID: entityID,
			Key:      key,
			Location: location,
			Bytes:    int64(len(data)),
		}

		return ans, nil
	}

	return entities.StoredAsset{}, fmt.Errorf("%w: no free name after %d attempts", ErrAssetExists, maxNameCollisions)
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, rawURL)
	}

	return data, nil
}
