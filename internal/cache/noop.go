package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache implementation that does nothing.
// Used when caching is disabled - every lookup is a miss.
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache instance
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// GetEmbeddings always misses
func (c *NoOpCache) GetEmbeddings(_ context.Context, keys []string) ([][]float32, error) {
	return make([][]float32, len(keys)), nil
}

// SetEmbeddings does nothing and always succeeds
func (c *NoOpCache) SetEmbeddings(context.Context, []string, [][]float32, time.Duration) error {
	return nil
}

// Close does nothing and always succeeds
func (c *NoOpCache) Close() error {
	return nil
}
