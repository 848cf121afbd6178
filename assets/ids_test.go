package assets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosom/google-maps-review-images/assets"
)

func TestUUIDSource(t *testing.T) {
	ids := assets.UUIDSource()

	seen := map[string]struct{}{}

	for range 100 {
		id := ids.NewID()
		assert.Len(t, id, 8)

		seen[id] = struct{}{}
	}

	assert.Len(t, seen, 100)
}

func TestIDFunc(t *testing.T) {
	ids := assets.IDFunc(func() string { return "fixed" })
	assert.Equal(t, "fixed", ids.NewID())
}
