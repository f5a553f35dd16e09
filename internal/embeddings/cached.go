package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"semchunk/internal/cache"
)

// Dimensioned is implemented by providers whose vector size is configurable.
// Dimensions returns 0 when the provider uses its model's native size.
type Dimensioned interface {
	Dimensions() int
}

// CachedEmbedder serves repeated texts from a cache and only sends misses to
// the wrapped provider. Cache failures degrade to a direct provider call.
type CachedEmbedder struct {
	next  Provider
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCachedEmbedder wraps next with c. A nil logger discards cache warnings.
func NewCachedEmbedder(next Provider, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedEmbedder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CachedEmbedder{next: next, cache: c, ttl: ttl, log: log}
}

func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) IsAvailable(ctx context.Context) bool { return c.next.IsAvailable(ctx) }

// Dimensions forwards the wrapped provider's configured size, if any.
func (c *CachedEmbedder) Dimensions() int {
	if d, ok := c.next.(Dimensioned); ok {
		return d.Dimensions()
	}
	return 0
}

// keyspace separates cache entries of the same model at different sizes.
func (c *CachedEmbedder) keyspace() string {
	if dims := c.Dimensions(); dims > 0 {
		return fmt.Sprintf("%s@%d", c.next.Model(), dims)
	}
	return c.next.Model()
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	space := c.keyspace()
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = cache.GenerateCacheKey(space, t)
	}

	out := make([]Vector, len(texts))
	cached, err := c.cache.GetEmbeddings(ctx, keys)
	if err != nil {
		c.log.Warn("embedding cache lookup failed", "err", err)
		cached = nil
	}
	want := c.Dimensions()
	var fresh []int
	for i := range texts {
		if i < len(cached) && len(cached[i]) > 0 && (want == 0 || len(cached[i]) == want) {
			out[i] = Vector(cached[i])
			continue
		}
		fresh = append(fresh, i)
	}
	if err := c.fill(ctx, texts, keys, fresh, out); err != nil {
		return nil, err
	}

	// Entries written at another size are replaced rather than mixed in.
	if stale := staleEntries(out, fresh); len(stale) > 0 {
		c.log.Warn("discarding cached embeddings of a different size", "count", len(stale))
		if err := c.fill(ctx, texts, keys, stale, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fill embeds texts[idx] with the wrapped provider, writes the vectors into
// out and stores them. Identical texts are embedded once.
func (c *CachedEmbedder) fill(ctx context.Context, texts, keys []string, idx []int, out []Vector) error {
	if len(idx) == 0 {
		return nil
	}
	var missTexts, missKeys []string
	positions := make(map[string][]int)
	for _, i := range idx {
		if _, seen := positions[keys[i]]; !seen {
			missTexts = append(missTexts, texts[i])
			missKeys = append(missKeys, keys[i])
		}
		positions[keys[i]] = append(positions[keys[i]], i)
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return err
	}
	if len(vecs) != len(missTexts) {
		return ErrProviderFailed
	}
	raw := make([][]float32, len(vecs))
	for j, v := range vecs {
		raw[j] = v
		for _, i := range positions[missKeys[j]] {
			out[i] = v.Clone()
		}
	}
	if err := c.cache.SetEmbeddings(ctx, missKeys, raw, c.ttl); err != nil {
		c.log.Warn("embedding cache store failed", "err", err)
	}
	return nil
}

// staleEntries returns the indices whose vector size disagrees with the
// freshly embedded ones. Without fresh vectors, a cache-only result of mixed
// sizes is discarded entirely.
func staleEntries(out []Vector, fresh []int) []int {
	if len(fresh) > 0 {
		dim := len(out[fresh[0]])
		var stale []int
		for i, v := range out {
			if len(v) != dim {
				stale = append(stale, i)
			}
		}
		return stale
	}
	for _, v := range out {
		if len(v) != len(out[0]) {
			all := make([]int, len(out))
			for i := range all {
				all[i] = i
			}
			return all
		}
	}
	return nil
}
