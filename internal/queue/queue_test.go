package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressChannel(t *testing.T) {
	id := uuid.MustParse("8b1d7c7e-2f4f-4c43-9a55-8f0e5c1f2b11")
	assert.Equal(t, "progress:8b1d7c7e-2f4f-4c43-9a55-8f0e5c1f2b11", ProgressChannel(id))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not-a-redis-url")
	assert.Error(t, err)
}

// openTestQueue connects to TEST_REDIS_URL; tests that need Redis skip without it.
func openTestQueue(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	q, err := New(url)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueDequeue(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	q.client.Del(ctx, QueueGenerateAudio)

	genID := uuid.New()
	require.NoError(t, q.EnqueueGenerateAudio(ctx, genID))

	n, err := q.GetQueueLength(ctx, QueueGenerateAudio)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err := q.Dequeue(ctx, QueueGenerateAudio, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, genID, job.GenerationID)
	assert.Equal(t, "generate_audio", job.Type)

	job, err = q.Dequeue(ctx, QueueGenerateAudio, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPublishSubscribeProgress(t *testing.T) {
	q := openTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	genID := uuid.New()
	events, err := q.SubscribeProgress(ctx, genID)
	require.NoError(t, err)

	require.NoError(t, q.PublishProgress(ctx, ProgressEvent{GenerationID: genID, Status: "synthesizing", Progress: 42}))

	select {
	case event := <-events:
		assert.Equal(t, 42, event.Progress)
		assert.Equal(t, "synthesizing", event.Status)
	case <-ctx.Done():
		t.Fatal("no progress event received")
	}
}
