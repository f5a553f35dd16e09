package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores embedding vectors keyed by content hash.
type Cache interface {
	// GetEmbeddings returns one entry per key, in key order.
	// Missing keys yield a nil entry, not an error.
	GetEmbeddings(ctx context.Context, keys []string) ([][]float32, error)

	// SetEmbeddings stores vecs[i] under keys[i] with TTL (0 = no expiry).
	SetEmbeddings(ctx context.Context, keys []string, vecs [][]float32, ttl time.Duration) error

	// Close releases the underlying connection, if any.
	Close() error
}

// GenerateCacheKey builds a stable key for a text embedded by model.
func GenerateCacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
