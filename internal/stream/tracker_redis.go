// Package stream provides the Redis Stream transport for background
// jobs.
package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tracker_server/pkg/logger"
)

const (
	// StreamLabelSync carries mailbox write-back jobs produced after
	// ingestion.
	StreamLabelSync = "labels:sync"
)

// RedisStream wraps a Redis client with consumer group semantics.
type RedisStream struct {
	client *redis.Client
	group  string
}

// NewRedisStream creates a new RedisStream.
func NewRedisStream(client *redis.Client, group string) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
	}
}

// CreateGroup creates the consumer group, tolerating reruns.
func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// Publish appends a JSON-encoded job to the stream.
func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume reads jobs for this consumer until the context is cancelled.
// Handler failures leave the message pending for redelivery.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler func(id string, data []byte) error) {
	log := logger.Default().WithField("stream", stream)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				log.WithError(err).Warn("stream read error")
			}
			continue
		}

		for _, str := range streams {
			for _, msg := range str.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}

				if err := handler(msg.ID, []byte(data)); err != nil {
					log.WithError(err).Warn("handler error for %s", msg.ID)
					continue
				}

				s.client.XAck(ctx, str.Stream, s.group, msg.ID)
			}
		}
	}
}

// Pending returns the number of unacknowledged messages.
func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
