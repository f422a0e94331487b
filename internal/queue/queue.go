package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueGenerateAudio = "queue:generate_audio"

	progressChannelPrefix = "progress:"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	GenerationID uuid.UUID `json:"generation_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProgressEvent is published on progress:{generation_id} while a generation runs.
type ProgressEvent struct {
	GenerationID uuid.UUID `json:"generation_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Error        string    `json:"error,omitempty"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Ping reports whether Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueGenerateAudio enqueues a PDF-to-audio generation job
func (q *Queue) EnqueueGenerateAudio(ctx context.Context, generationID uuid.UUID) error {
	job := &Job{
		ID:           uuid.New(),
		Type:         "generate_audio",
		GenerationID: generationID,
	}
	return q.Enqueue(ctx, QueueGenerateAudio, job)
}

func ProgressChannel(generationID uuid.UUID) string {
	return progressChannelPrefix + generationID.String()
}

func (q *Queue) PublishProgress(ctx context.Context, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return q.client.Publish(ctx, ProgressChannel(event.GenerationID), data).Err()
}

// SubscribeProgress delivers events for one generation until ctx is done.
// The returned channel is closed when the subscription ends.
func (q *Queue) SubscribeProgress(ctx context.Context, generationID uuid.UUID) (<-chan ProgressEvent, error) {
	sub := q.client.Subscribe(ctx, ProgressChannel(generationID))

	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan ProgressEvent)
	go func() {
		defer close(events)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
