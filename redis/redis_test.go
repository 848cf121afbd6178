package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/harvester"
	"github.com/gosom/google-maps-review-images/redis"
	"github.com/gosom/google-maps-review-images/redis/config"
	"github.com/gosom/google-maps-review-images/redis/tasks"
	"github.com/gosom/google-maps-review-images/testcontainers"
)

type recordingHarvester struct {
	mu   sync.Mutex
	seen map[string]int
	done chan struct{}
	want int
}

func (r *recordingHarvester) Harvest(_ context.Context, target entities.TargetPage) *harvester.PageResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen[target.EntityID]++

	if len(r.seen) == r.want {
		close(r.done)
	}

	return &harvester.PageResult{EntityID: target.EntityID, State: harvester.StateDone}
}

func TestClientServerRoundTrip(t *testing.T) {
	container := testcontainers.Redis(t)

	cfg, err := config.Parse(container.URL())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg)
	require.NoError(t, err)

	defer client.Close()

	assert.True(t, client.IsHealthy(ctx))

	targets := []entities.TargetPage{
		{EntityID: "v1", SourceURL: "http://fixture/1"},
		{EntityID: "v2", SourceURL: "http://fixture/2"},
	}

	for _, target := range targets {
		task, err := tasks.NewHarvestTask(target)
		require.NoError(t, err)

		info, err := client.Enqueue(ctx, task, asynq.Queue(config.QueueDefault), asynq.MaxRetry(1))
		require.NoError(t, err)
		assert.Equal(t, config.QueueDefault, info.Queue)
	}

	rec := &recordingHarvester{seen: map[string]int{}, done: make(chan struct{}), want: len(targets)}

	srv := redis.NewServer(cfg, nil)
	require.NoError(t, srv.Start(tasks.NewHandler(rec)))

	defer srv.Shutdown()

	select {
	case <-rec.done:
	case <-ctx.Done():
		t.Fatal("tasks were not processed")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	assert.Equal(t, map[string]int{"v1": 1, "v2": 1}, rec.seen)
}

func TestNewClientFailsWithoutRedis(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 1

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := redis.NewClient(ctx, cfg)
	assert.Error(t, err)
}
