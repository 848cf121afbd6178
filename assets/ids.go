package assets

import (
	"github.com/google/uuid"
)

const idLength = 8

// IDSource names stored assets. Every call must return a new token.
type IDSource interface {
	NewID() string
}

// IDFunc adapts a function to IDSource.
type IDFunc func() string

func (f IDFunc) NewID() string {
	return f()
}

type uuidSource struct{}

// UUIDSource returns the first 8 characters of a random v4 uuid.
func UUIDSource() IDSource {
	return uuidSource{}
}

func (uuidSource) NewID() string {
	return uuid.NewString()[:idLength]
}
