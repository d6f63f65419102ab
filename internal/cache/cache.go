// Package cache is the short-lived keyed storage behind OTP codes,
// verification tokens and refresh tokens. The interface keeps the backing
// store injectable; production wires Redis, tests wire miniredis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a minimal key-value store with per-entry absolute expiry.
// Get reports ok=false for a missing or expired key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedis wraps a Redis client as a Store.
func NewRedis(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisStore) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
