package embeddings

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrProviderFailed is returned when a provider call fails after retries.
	ErrProviderFailed = errors.New("embedding provider failed")
	// ErrNotAvailable is returned when a provider cannot serve requests at all.
	ErrNotAvailable = errors.New("embedding provider not available")
)

// Vector is a simple float32 slice wrapper.
type Vector []float32

// Provider maps texts to vectors. Embed returns exactly one vector per input
// text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	IsAvailable(ctx context.Context) bool
	Model() string
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths, empty vectors and zero vectors yield 0.
func CosineSimilarity(a, b Vector) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Normalize scales v to unit length. Zero vectors are returned unchanged.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Clone returns a copy of v that does not share its backing array.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
