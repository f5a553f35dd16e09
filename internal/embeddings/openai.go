package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sethvargo/go-retry"
)

// OpenAIEmbedder calls OpenAI's embeddings API.
type OpenAIEmbedder struct {
	model      openai.EmbeddingModel
	dimensions int
	client     *openai.Client

	retries   uint64
	retryBase time.Duration
	retryMax  time.Duration
}

const (
	defaultEmbeddingTimeout = 30 * time.Second
	// maxOpenAIBatch is the largest input array accepted per request.
	maxOpenAIBatch = 2048

	defaultRetries   = 2
	defaultRetryBase = 100 * time.Millisecond
	defaultRetryMax  = 5 * time.Second
)

// NewOpenAIEmbedder creates a new OpenAI embedder. dimensions <= 0 keeps the
// model's native size. Extra request options (base URL, HTTP client) are
// passed through to the SDK.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel, dimensions int, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.EmbeddingModelTextEmbedding3Small
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	cli := openai.NewClient(reqOpts...)
	return &OpenAIEmbedder{
		model:      model,
		dimensions: dimensions,
		client:     &cli,
		retries:    defaultRetries,
		retryBase:  defaultRetryBase,
		retryMax:   defaultRetryMax,
	}, nil
}

func (e *OpenAIEmbedder) Model() string {
	if e == nil {
		return ""
	}
	return string(e.model)
}

// Dimensions returns the requested vector size, or 0 for the model's native size.
func (e *OpenAIEmbedder) Dimensions() int {
	if e == nil {
		return 0
	}
	return e.dimensions
}

// IsAvailable reports whether the client is configured. It does not call the API.
func (e *OpenAIEmbedder) IsAvailable(context.Context) bool {
	return e != nil && e.client != nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if !e.IsAvailable(ctx) {
		return nil, ErrNotAvailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += maxOpenAIBatch {
		end := min(start+maxOpenAIBatch, len(texts))
		var vecs []Vector
		err := retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
			var callErr error
			vecs, callErr = e.embedBatch(ctx, texts[start:end])
			if callErr != nil && isRetryable(ctx, callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) backoff() retry.Backoff {
	b := retry.NewExponential(e.retryBase)
	if e.retryMax > 0 {
		b = retry.WithCappedDuration(e.retryMax, b)
	}
	return retry.WithMaxRetries(e.retries, b)
}

// isRetryable rejects client errors other than rate limiting; they fail the
// same way on every attempt.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultEmbeddingTimeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: e.model,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(reqCtx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	vecs := make([]Vector, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vecs) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", idx)
		}
		// Convert []float64 to []float32
		vec := make(Vector, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	return vecs, nil
}
