package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultLRUSize = 10000

// LRUCache keeps vectors in process memory with LRU eviction. Entries expire
// after the TTL given at construction; the per-call TTL is not used.
type LRUCache struct {
	cache *expirable.LRU[string, []float32]
}

// NewLRUCache creates an in-memory cache holding at most size vectors for at
// most ttl each. ttl <= 0 disables expiry.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = defaultLRUSize
	}
	return &LRUCache{cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// GetEmbeddings returns copies so callers cannot mutate cached vectors.
func (c *LRUCache) GetEmbeddings(_ context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	for i, k := range keys {
		if v, ok := c.cache.Get(k); ok {
			out[i] = append([]float32(nil), v...)
		}
	}
	return out, nil
}

func (c *LRUCache) SetEmbeddings(_ context.Context, keys []string, vecs [][]float32, _ time.Duration) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache: %d keys for %d vectors", len(keys), len(vecs))
	}
	for i, k := range keys {
		c.cache.Add(k, append([]float32(nil), vecs[i]...))
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

func (c *LRUCache) Close() error {
	c.cache.Purge()
	return nil
}
