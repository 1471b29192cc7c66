package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tracker_server/core/port/out"
)

// oauthStateKey is the Redis key prefix for OAuth state nonces.
const oauthStateKey = "oauth:state:"

// RedisStateStore implements out.StateStore on Redis. States are
// single-use CSRF nonces that expire on their own via TTL.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a new RedisStateStore.
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

// Save stores the state with its TTL.
func (s *RedisStateStore) Save(ctx context.Context, state string, userID uuid.UUID) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if userID == uuid.Nil {
		return errors.New("userID cannot be nil")
	}

	if err := s.client.Set(ctx, oauthStateKey+state, userID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// Consume validates and deletes the state in one atomic step so a
// replayed callback cannot reuse it.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (uuid.UUID, error) {
	if state == "" {
		return uuid.Nil, errors.New("state cannot be empty")
	}

	userIDStr, err := s.client.GetDel(ctx, oauthStateKey+state).Result()
	if err == redis.Nil {
		return uuid.Nil, errors.New("state not found or expired")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to validate OAuth state: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid userID in state: %w", err)
	}
	return userID, nil
}

var _ out.StateStore = (*RedisStateStore)(nil)
