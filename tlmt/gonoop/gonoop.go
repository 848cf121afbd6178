package gonoop

import (
	"context"

	"github.com/gosom/google-maps-review-images/tlmt"
)

type service struct{}

// New returns a Telemetry that drops every event.
func New() tlmt.Telemetry {
	return service{}
}

func (service) Send(context.Context, tlmt.Event) error {
	return nil
}

func (service) Close() error {
	return nil
}
