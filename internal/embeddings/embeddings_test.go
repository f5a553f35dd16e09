package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"semchunk/internal/cache"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float32
	}{
		{
			name:     "identical vectors",
			a:        Vector{1, 0, 0},
			b:        Vector{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        Vector{1, 0},
			b:        Vector{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        Vector{1, 0},
			b:        Vector{-1, 0},
			expected: -1.0,
		},
		{
			name:     "empty vectors",
			a:        Vector{},
			b:        Vector{},
			expected: 0.0,
		},
		{
			name:     "different length vectors",
			a:        Vector{1, 2},
			b:        Vector{1, 2, 3},
			expected: 0.0,
		},
		{
			name:     "zero vector",
			a:        Vector{0, 0},
			b:        Vector{1, 1},
			expected: 0.0,
		},
		{
			name:     "normalized vectors 45 degrees",
			a:        Vector{1, 0},
			b:        Vector{0.707, 0.707},
			expected: 0.707,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(result-tt.expected)) > 0.01 {
				t.Errorf("got %f, want %f", result, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize(Vector{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, Vector{0, 0}, Normalize(Vector{0, 0}))
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(0)
	ctx := context.Background()
	require.True(t, h.IsAvailable(ctx))

	vecs, err := h.Embed(ctx, []string{
		"Cats are mammals.",
		"Cats are mammals.",
		"cats ARE mammals",
		"The stock market fell today.",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Len(t, vecs[0], DefaultHashDimension)
	assert.Equal(t, vecs[0], vecs[1], "embedding must be deterministic")
	assert.InDelta(t, 1.0, CosineSimilarity(vecs[0], vecs[2]), 1e-5, "case and punctuation are ignored")
	assert.Less(t, CosineSimilarity(vecs[0], vecs[3]), float32(0.5))
}

func TestHashEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	lru := cache.NewLRUCache(16, 0)

	inner := new(MockEmbedder)
	inner.On("Model").Return("m")
	inner.On("Embed", mock.Anything, []string{"a", "b"}).Return([]Vector{{1}, {2}}, nil).Once()
	inner.On("Embed", mock.Anything, []string{"c"}).Return([]Vector{{3}}, nil).Once()

	c := NewCachedEmbedder(inner, lru, 0, nil)

	first, err := c.Embed(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []Vector{{1}, {2}, {1}}, first)

	second, err := c.Embed(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []Vector{{2}, {3}, {1}}, second)

	inner.AssertExpectations(t)
}

func TestCachedEmbedderCacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	broken := new(cache.MockCache)
	broken.On("GetEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	broken.On("SetEmbeddings", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

	inner := new(MockEmbedder)
	inner.On("Model").Return("m")
	inner.On("Embed", mock.Anything, []string{"x"}).Return([]Vector{{7}}, nil).Once()

	got, err := NewCachedEmbedder(inner, broken, 0, nil).Embed(ctx, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []Vector{{7}}, got)
}

func TestCachedEmbedderPropagatesProviderError(t *testing.T) {
	inner := new(MockEmbedder)
	inner.On("Model").Return("m")
	inner.On("Embed", mock.Anything, mock.Anything).Return(nil, ErrProviderFailed)

	_, err := NewCachedEmbedder(inner, cache.NewNoOpCache(), 0, nil).Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestCachedEmbedderSeparatesDimensions(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewLRUCache(16, 0)

	small := NewCachedEmbedder(NewHashEmbedder(8), shared, 0, nil)
	large := NewCachedEmbedder(NewHashEmbedder(16), shared, 0, nil)
	assert.Equal(t, 16, large.Dimensions())

	_, err := small.Embed(ctx, []string{"shared sentence"})
	require.NoError(t, err)

	vecs, err := large.Embed(ctx, []string{"shared sentence", "another one"})
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, 16)
	}
	assert.Equal(t, 3, shared.Len())
}

func TestCachedEmbedderReplacesStaleSizes(t *testing.T) {
	ctx := context.Background()
	key := func(text string) string { return cache.GenerateCacheKey("m", text) }

	t.Run("cached entry disagrees with fresh vectors", func(t *testing.T) {
		lru := cache.NewLRUCache(16, 0)
		require.NoError(t, lru.SetEmbeddings(ctx, []string{key("a")}, [][]float32{{1, 2}}, 0))

		inner := new(MockEmbedder)
		inner.On("Model").Return("m")
		inner.On("Embed", mock.Anything, []string{"b"}).Return([]Vector{{1, 2, 3}}, nil).Once()
		inner.On("Embed", mock.Anything, []string{"a"}).Return([]Vector{{4, 5, 6}}, nil).Once()

		got, err := NewCachedEmbedder(inner, lru, 0, nil).Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []Vector{{4, 5, 6}, {1, 2, 3}}, got)
		inner.AssertExpectations(t)

		refreshed, err := lru.GetEmbeddings(ctx, []string{key("a")})
		require.NoError(t, err)
		assert.Equal(t, []float32{4, 5, 6}, refreshed[0])
	})

	t.Run("cache-only hits of mixed sizes", func(t *testing.T) {
		lru := cache.NewLRUCache(16, 0)
		require.NoError(t, lru.SetEmbeddings(ctx, []string{key("a"), key("b")}, [][]float32{{1, 2}, {1, 2, 3}}, 0))

		inner := new(MockEmbedder)
		inner.On("Model").Return("m")
		inner.On("Embed", mock.Anything, []string{"a", "b"}).Return([]Vector{{1, 1, 1}, {2, 2, 2}}, nil).Once()

		got, err := NewCachedEmbedder(inner, lru, 0, nil).Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []Vector{{1, 1, 1}, {2, 2, 2}}, got)
		inner.AssertExpectations(t)
	})
}
