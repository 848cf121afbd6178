package entities

import (
	"errors"
	"path"
	"strings"
)

var (
	ErrEmptyEntityID  = errors.New("entity id is empty")
	ErrEmptySourceURL = errors.New("source url is empty")
	ErrInvalidEntity  = errors.New("entity id must be a single path segment")
)

// TargetPage identifies one entity (a review) to harvest.
type TargetPage struct {
	EntityID  string `json:"entity_id"`
	SourceURL string `json:"source_url"`
}

func (t TargetPage) Validate() error {
	if t.EntityID == "" {
		return ErrEmptyEntityID
	}

	if t.SourceURL == "" {
		return ErrEmptySourceURL
	}

	return ValidateEntityID(t.EntityID)
}

// ValidateEntityID rejects ids that would escape the entity directory.
func ValidateEntityID(id string) error {
	if id == "" {
		return ErrEmptyEntityID
	}

	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return ErrInvalidEntity
	}

	return nil
}

// ImageRef is an image url discovered in a gallery. Index is the position of
// the gallery item in document order.
type ImageRef struct {
	EntityID string
	URL      string
	Index    int
}

// StoredAsset is an image persisted under <entity_id>/<id>.<ext>.
type StoredAsset struct {
	EntityID string
	Key      string
	Location string
	Bytes    int64
}

// AssetKey builds the store key of an asset.
func AssetKey(entityID, id, ext string) string {
	return path.Join(entityID, id+"."+strings.TrimPrefix(ext, "."))
}
