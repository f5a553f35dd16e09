package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefix for cached vectors
const embeddingKeyPrefix = "emb:"

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

// GetEmbeddings fetches all keys with a single MGET
func (c *RedisCache) GetEmbeddings(ctx context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = embeddingKeyPrefix + k
	}
	vals, err := c.client.MGet(ctx, prefixed...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // Cache miss
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil {
			return nil, fmt.Errorf("decode cached vector %s: %w", keys[i], err)
		}
		out[i] = vec
	}
	return out, nil
}

// SetEmbeddings stores vectors with TTL in one pipeline round trip
func (c *RedisCache) SetEmbeddings(ctx context.Context, keys []string, vecs [][]float32, ttl time.Duration) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache: %d keys for %d vectors", len(keys), len(vecs))
	}
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for i, k := range keys {
		data, err := json.Marshal(vecs[i])
		if err != nil {
			return err
		}
		pipe.Set(ctx, embeddingKeyPrefix+k, data, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
