package search_cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const redisKeyPrefix = "lightbot:search:"

type RedisSearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSearchCache creates a cache whose entries expire after ttl
// (0 keeps them until evicted).
func NewRedisSearchCache(addr, password string, db int, ttl time.Duration) *RedisSearchCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisSearchCache{client: client, ttl: ttl}
}

func (r *RedisSearchCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSearchCache) Close() error {
	return r.client.Close()
}

func (r *RedisSearchCache) Get(ctx context.Context, key string) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("Redis: GET for %s took %s", key, time.Since(startTime))
	}()

	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		log.Errorf("Redis: Error reading search cache key %s: %v", key, err)
		return nil, fmt.Errorf("failed to check search cache: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (r *RedisSearchCache) Set(ctx context.Context, key string, value []byte) error {
	startTime := time.Now()
	defer func() {
		log.Debugf("Redis: SET for %s took %s", key, time.Since(startTime))
	}()

	if err := r.client.Set(ctx, redisKeyPrefix+key, value, r.ttl).Err(); err != nil {
		log.Errorf("Redis: Failed to store search cache key %s: %v", key, err)
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

func (r *RedisSearchCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete search cache key %s: %w", key, err)
	}
	return nil
}

func (r *RedisSearchCache) IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
