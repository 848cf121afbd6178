package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// ErrAssetExists is returned by a Store when the key is already taken.
var ErrAssetExists = errors.New("asset already exists")

// Store persists asset bytes under a slash separated key.
type Store interface {
	// Put stores data under key and returns where it ended up. It never
	// replaces an existing asset.
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// FileStore writes assets below a root directory.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Root() string {
	return s.root
}

// Put writes data to a temp file in the destination directory and links it
// to its final name, so a reader never sees a half written asset.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	final, err := s.path(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(final)

	// concurrent fetches for one entity race here; MkdirAll tolerates that
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(data)
	err = multierr.Append(err, tmp.Close())

	if err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod asset: %w", err)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrAssetExists, key)
		}

		return "", fmt.Errorf("link asset: %w", err)
	}

	return final, nil
}

func (s *FileStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid asset key %q", key)
	}

	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// MultiStore writes to a primary store and then mirrors the asset to the
// others. Only the primary decides success.
type MultiStore struct {
	primary Store
	mirrors []Store
	onError func(key string, err error)
}

func NewMultiStore(primary Store, mirrors []Store, onError func(key string, err error)) *MultiStore {
	return &MultiStore{
		primary: primary,
		mirrors: mirrors,
		onError: onError,
	}
}

func (m *MultiStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	location, err := m.primary.Put(ctx, key, data)
	if err != nil {
		return "", err
	}

	var mirrorErr error

	for _, s := range m.mirrors {
		if _, err := s.Put(ctx, key, data); err != nil {
			mirrorErr = multierr.Append(mirrorErr, err)
		}
	}

	if mirrorErr != nil && m.onError != nil {
		m.onError(key, mirrorErr)
	}

	return location, nil
}
