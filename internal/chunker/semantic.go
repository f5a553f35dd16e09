package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"semchunk/internal/embeddings"
	"semchunk/internal/sentence"
	"semchunk/internal/tokenizer"
)

const availabilityTimeout = 5 * time.Second

// Option customizes a chunker at construction time.
type Option func(*pipeline)

// WithSplitter replaces the default rule-based sentence splitter.
func WithSplitter(s sentence.Splitter) Option {
	return func(p *pipeline) {
		if s != nil {
			p.splitter = s
		}
	}
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(log *slog.Logger) Option {
	return func(p *pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// pipeline holds what both chunking strategies share: splitting, embedding
// and assembly. The strategies differ only in how groups are formed.
type pipeline struct {
	provider embeddings.Provider
	splitter sentence.Splitter
	cfg      Config
	log      *slog.Logger
}

func newPipeline(provider embeddings.Provider, cfg Config, doublePass bool, opts []Option) (*pipeline, error) {
	if err := cfg.Validate(doublePass); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is nil", ErrConfiguration)
	}
	p := &pipeline{
		provider: provider,
		splitter: sentence.New(tokenizer.Words{}, sentence.Options{MinCharacters: sentence.DefaultMinCharacters}),
		cfg:      cfg,
		log:      slog.New(slog.DiscardHandler),
	}
	if !p.available() {
		return nil, fmt.Errorf("%w: embedding provider %q is not available", ErrConfiguration, provider.Model())
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// available asks the provider whether it can serve requests, giving up after
// availabilityTimeout.
func (p *pipeline) available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	return p.provider.IsAvailable(ctx)
}

// run splits and embeds text, lets form build the groups and assembles the
// result. Empty or whitespace-only text yields an empty, non-nil slice.
func (p *pipeline) run(ctx context.Context, text string, strategy string, form func([]sentence.Sentence) []Group) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	sents := p.splitter.Split(text)
	if len(sents) == 0 {
		return []Chunk{}, nil
	}
	vecs, err := p.embed(ctx, text, sents)
	if err != nil {
		return nil, err
	}
	for i := range sents {
		sents[i].Embedding = vecs[i]
	}
	groups := form(sents)
	chunks, err := Assemble(text, sents, groups)
	if err != nil {
		p.log.Error("chunk assembly failed", "strategy", strategy, "error", err)
		return nil, err
	}
	p.log.Debug("chunked text",
		"strategy", strategy,
		"bytes", len(text),
		"sentences", len(sents),
		"chunks", len(chunks),
	)
	return chunks, nil
}

// windowTexts returns the text embedded for each sentence: the sentence
// itself, or with SimilarityWindow neighbors on each side sliced from the
// original input.
func windowTexts(text string, sents []sentence.Sentence, w int) []string {
	out := make([]string, len(sents))
	for i, s := range sents {
		if w <= 0 {
			out[i] = s.Text
			continue
		}
		lo := max(0, i-w)
		hi := min(len(sents)-1, i+w)
		out[i] = text[sents[lo].Start:sents[hi].End]
	}
	return out
}

// embed calls the provider in batches of BatchSize with at most Concurrency
// calls in flight and returns one vector per sentence, in order.
func (p *pipeline) embed(ctx context.Context, text string, sents []sentence.Sentence) ([]embeddings.Vector, error) {
	texts := windowTexts(text, sents, p.cfg.SimilarityWindow)
	vecs := make([]embeddings.Vector, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := p.provider.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("provider returned %d vectors for %d texts", len(batch), end-start)
			}
			copy(vecs[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if err := checkDimensions(vecs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vecs, nil
}

func checkDimensions(vecs []embeddings.Vector) error {
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("empty vector for sentence %d", i)
		}
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

// SemanticChunker groups adjacent sentences in a single forward pass.
type SemanticChunker struct {
	p *pipeline
}

// NewSemantic validates cfg and checks that the provider can serve requests.
func NewSemantic(provider embeddings.Provider, cfg Config, opts ...Option) (*SemanticChunker, error) {
	p, err := newPipeline(provider, cfg, false, opts)
	if err != nil {
		return nil, err
	}
	return &SemanticChunker{p: p}, nil
}

func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	return c.p.run(ctx, text, "semantic", func(sents []sentence.Sentence) []Group {
		return GroupSentences(sents, c.p.cfg)
	})
}

func (c *SemanticChunker) IsAvailable() bool {
	return c != nil && c.p.available()
}

// DoublePassChunker runs the forward pass and then merges non-adjacent
// similar groups within SkipWindow.
type DoublePassChunker struct {
	p *pipeline
}

// NewDoublePass is like NewSemantic but also requires SkipWindow >= 1.
func NewDoublePass(provider embeddings.Provider, cfg Config, opts ...Option) (*DoublePassChunker, error) {
	p, err := newPipeline(provider, cfg, true, opts)
	if err != nil {
		return nil, err
	}
	return &DoublePassChunker{p: p}, nil
}

func (c *DoublePassChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	return c.p.run(ctx, text, "double_pass", func(sents []sentence.Sentence) []Group {
		return MergeGroups(GroupSentences(sents, c.p.cfg), c.p.cfg)
	})
}

func (c *DoublePassChunker) IsAvailable() bool {
	return c != nil && c.p.available()
}

// ChunkBatch chunks texts with at most concurrency calls in flight. Results
// are in input order. The first error cancels the remaining work.
func ChunkBatch(ctx context.Context, c Chunker, texts []string, concurrency int) ([][]Chunk, error) {
	if c == nil {
		return nil, errors.New("chunker: nil chunker")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([][]Chunk, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, text := range texts {
		g.Go(func() error {
			chunks, err := c.Chunk(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
