package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps conversation contexts in Redis with a native TTL,
// letting multiple assistant instances share session state.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed Store from a redis:// URL.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL failed: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

func sessionKey(userID string) string {
	return "assistant:session:" + userID
}

// Get loads the user's context, returning an empty one when absent.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Context, error) {
	raw, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Context{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		// A corrupt session is not worth failing the turn over.
		return &Context{}, nil
	}

	return &c, nil
}

// Put stores the user's context with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, userID string, c *Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
