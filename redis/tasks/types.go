package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/gosom/google-maps-review-images/entities"
)

// Task types
const (
	TypeHarvestPage = "harvest:page"
	TypeHealthCheck = "health:check"
)

// HarvestPayload is the payload of a TypeHarvestPage task.
type HarvestPayload struct {
	EntityID  string `json:"entity_id"`
	SourceURL string `json:"source_url"`
}

func (p HarvestPayload) Target() entities.TargetPage {
	return entities.TargetPage{EntityID: p.EntityID, SourceURL: p.SourceURL}
}

// NewHarvestTask wraps target in a task. Options are applied on enqueue.
func NewHarvestTask(target entities.TargetPage, opts ...asynq.Option) (*asynq.Task, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(HarvestPayload{EntityID: target.EntityID, SourceURL: target.SourceURL})
	if err != nil {
		return nil, fmt.Errorf("marshal harvest payload: %w", err)
	}

	return asynq.NewTask(TypeHarvestPage, data, opts...), nil
}
