package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"tracker_server/core/port/out"
)

// LabelQueue implements out.LabelSyncQueue on a Redis Stream. Jobs
// survive restarts and are redelivered until acknowledged.
type LabelQueue struct {
	stream *RedisStream
}

// NewLabelQueue creates a new LabelQueue.
func NewLabelQueue(stream *RedisStream) *LabelQueue {
	return &LabelQueue{stream: stream}
}

type labelJobEnvelope struct {
	ID        string            `json:"id"`
	Job       *out.LabelSyncJob `json:"job"`
	CreatedAt time.Time         `json:"created_at"`
}

// Enqueue publishes a label sync job.
func (q *LabelQueue) Enqueue(ctx context.Context, job *out.LabelSyncJob) error {
	envelope := &labelJobEnvelope{
		ID:        uuid.New().String(),
		Job:       job,
		CreatedAt: time.Now(),
	}
	_, err := q.stream.Publish(ctx, StreamLabelSync, envelope)
	return err
}

// Run consumes label jobs until the context is cancelled.
func (q *LabelQueue) Run(ctx context.Context, consumer string, handler func(ctx context.Context, job *out.LabelSyncJob) error) error {
	if err := q.stream.CreateGroup(ctx, StreamLabelSync); err != nil {
		return err
	}

	q.stream.Consume(ctx, StreamLabelSync, consumer, func(id string, data []byte) error {
		var envelope labelJobEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			// Malformed payloads are acked away, retrying cannot fix them
			return nil
		}
		if envelope.Job == nil {
			return nil
		}
		return handler(ctx, envelope.Job)
	})
	return nil
}

var _ out.LabelSyncQueue = (*LabelQueue)(nil)
