package embeddings

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultHashDimension is the vector size of HashEmbedder when none is given.
	DefaultHashDimension = 256
	hashModelName        = "hash-bow"
)

// HashEmbedder is a deterministic, offline embedder. Each lower-cased word is
// hashed into a fixed number of buckets (the hashing trick) and the resulting
// bag-of-words vector is normalized, so texts sharing vocabulary score high
// cosine similarity. It needs no network and is safe for concurrent use.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of size dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Model() string { return hashModelName }

func (h *HashEmbedder) Dimensions() int { return h.dim }

func (h *HashEmbedder) IsAvailable(context.Context) bool { return h != nil && h.dim > 0 }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Vector, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) Vector {
	vec := make(Vector, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		sum := xxhash.Sum64String(w)
		bucket := sum % uint64(h.dim)
		// One hash bit picks the sign to keep collisions from only adding up.
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	return Normalize(vec)
}
