package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// statusCacheTTL bounds how stale a cached minutes status can be.
// Clients poll aggressively; the cache absorbs the storm while every
// pipeline transition writes the fresh snapshot through.
const statusCacheTTL = 2 * time.Second

// RedisStore handles Redis operations for rate limiting and the
// minutes-status poll cache. The service runs without it; callers must
// tolerate a nil *RedisStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// minutesStatusKey returns the cache key for a request's latest run status.
func minutesStatusKey(requestID uuid.UUID) string {
	return fmt.Sprintf("minutes:%s:status", requestID)
}

// MinutesStatusSnapshot is the cached shape served to status polls.
type MinutesStatusSnapshot struct {
	RunID           uuid.UUID `json:"run_id"`
	Status          string    `json:"status"`
	ProcessingError string    `json:"processing_error,omitempty"`
}

// CacheMinutesStatus stores a status snapshot with a short TTL. Writes
// come from pipeline transitions only; poll reads never populate the
// key, so a stale snapshot cannot overwrite a newer one.
func (s *RedisStore) CacheMinutesStatus(ctx context.Context, requestID uuid.UUID, snap MinutesStatusSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, minutesStatusKey(requestID), data, statusCacheTTL).Err()
}

// GetCachedMinutesStatus retrieves a cached snapshot. Returns nil on a
// cache miss.
func (s *RedisStore) GetCachedMinutesStatus(ctx context.Context, requestID uuid.UUID) (*MinutesStatusSnapshot, error) {
	data, err := s.client.Get(ctx, minutesStatusKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap MinutesStatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
