package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueuePublishSubscribe(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	// Published before any subscriber: held as backlog.
	require.NoError(t, q.Publish(ctx, "campaign.dispatch", Job{TaskID: 1, CampaignID: 7}))
	assert.Len(t, q.Pending("campaign.dispatch"), 1)

	var mu sync.Mutex
	var seen []Job
	q.Subscribe(ctx, "campaign.dispatch", func(_ context.Context, job Job) {
		mu.Lock()
		seen = append(seen, job)
		mu.Unlock()
	})

	require.NoError(t, q.Publish(ctx, "campaign.dispatch", Job{TaskID: 2, CampaignID: 7}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, uint(1), seen[0].TaskID)
	assert.Equal(t, uint(2), seen[1].TaskID)
	assert.Empty(t, q.Pending("campaign.dispatch"))
}

func TestMemoryQueueReleaseDelays(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	done := make(chan Job, 1)
	q.Subscribe(ctx, "webhook.dispatch", func(_ context.Context, job Job) {
		done <- job
	})

	start := time.Now()
	require.NoError(t, q.Release(ctx, "webhook.dispatch", Job{LogID: 9, Attempt: 1}, 30*time.Millisecond))

	select {
	case job := <-done:
		assert.Equal(t, uint(9), job.LogID)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("released job never redelivered")
	}
}

func TestWaitQueueName(t *testing.T) {
	assert.Equal(t, "campaign.dispatch.wait.180000", waitQueueName("campaign.dispatch", 3*time.Minute))
}
