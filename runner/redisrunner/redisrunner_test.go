package redisrunner_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/redis/tasks"
	"github.com/gosom/google-maps-review-images/runner"
	"github.com/gosom/google-maps-review-images/runner/redisrunner"
)

type fakeQueue struct {
	tasks  []*asynq.Task
	opts   [][]asynq.Option
	failAt int
}

func (q *fakeQueue) Enqueue(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.failAt > 0 && len(q.tasks)+1 == q.failAt {
		return nil, errors.New("redis down")
	}

	q.tasks = append(q.tasks, task)
	q.opts = append(q.opts, opts)

	return &asynq.TaskInfo{Queue: "default"}, nil
}

func TestProduce(t *testing.T) {
	q := &fakeQueue{}
	targets := []entities.TargetPage{
		{EntityID: "v1", SourceURL: "http://fixture/1"},
		{EntityID: "v2", SourceURL: "http://fixture/2"},
	}

	n, err := redisrunner.Produce(context.Background(), q, targets, asynq.MaxRetry(2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, q.tasks, 2)

	for i, task := range q.tasks {
		assert.Equal(t, tasks.TypeHarvestPage, task.Type())

		var payload tasks.HarvestPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, targets[i], payload.Target())
		assert.Len(t, q.opts[i], 1)
	}
}

func TestProduceStopsAtFirstError(t *testing.T) {
	q := &fakeQueue{failAt: 2}
	targets := []entities.TargetPage{
		{EntityID: "v1", SourceURL: "http://fixture/1"},
		{EntityID: "v2", SourceURL: "http://fixture/2"},
		{EntityID: "v3", SourceURL: "http://fixture/3"},
	}

	n, err := redisrunner.Produce(context.Background(), q, targets)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestConstructorsCheckRunMode(t *testing.T) {
	cfg := &runner.Config{RunMode: runner.RunModeFile}

	_, err := redisrunner.NewProducer(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, runner.ErrInvalidRunMode)

	_, err = redisrunner.NewWorker(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, runner.ErrInvalidRunMode)
}
