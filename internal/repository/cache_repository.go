package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/tutorhive/tutorhive-api/pkg/errors"
)

// CacheRepository stores generated slot lists in Redis as JSON. It is only
// constructed when Redis is reachable; the service layer handles the
// cache-disabled case.
type CacheRepository struct {
	client *redis.Client
}

// NewCacheRepository constructs a cache repository over a live client.
func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// Get unmarshals the cached value at key into dest. A missing key is reported
// as ErrCacheMiss so callers can fall back to the store.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return appErrors.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// Set stores value at key for the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern drops every key matching pattern. Used to invalidate a
// tutor's slot entries when their availability or lessons change.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %d keys for %s: %w", len(keys), pattern, err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *CacheRepository) Close() error {
	return r.client.Close()
}
