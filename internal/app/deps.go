package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"semchunk/internal/cache"
	"semchunk/internal/chunker"
	"semchunk/internal/config"
	"semchunk/internal/embeddings"
	"semchunk/internal/logger"
	"semchunk/internal/queue"
	"semchunk/internal/refinery"
	"semchunk/internal/sentence"
	"semchunk/internal/tokenizer"
)

// Chunking strategies accepted by the service.
const (
	StrategySemantic   = "semantic"
	StrategyDoublePass = "double_pass"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config     config.Config
	Log        *slog.Logger
	Cache      cache.Cache
	Embedder   embeddings.Provider
	Counter    tokenizer.Counter
	Semantic   *chunker.SemanticChunker
	DoublePass *chunker.DoublePassChunker
	Refinery   refinery.Refinery
	// Queue is nil unless QUEUE_PROVIDER=nats.
	Queue queue.Queue

	closers []func() error
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return Deps{}, err
	}
	return New(cfg, logger.New(cfg.LogLevel, cfg.LogFormat))
}

// New builds dependencies from an already loaded configuration.
func New(cfg config.Config, log *slog.Logger) (Deps, error) {
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}
	deps := Deps{Config: cfg, Log: log}

	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	deps.Cache = c
	deps.closers = append(deps.closers, c.Close)

	provider, err := buildEmbedder(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	deps.Embedder = embeddings.NewCachedEmbedder(provider, c, cfg.CacheTTL, log)

	counter, err := tokenizer.New(cfg.Tokenizer, cfg.TokenizerEncoding)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	deps.Counter = counter

	opts := []chunker.Option{
		chunker.WithLogger(log),
		chunker.WithSplitter(sentence.New(counter, sentence.Options{MinCharacters: cfg.MinSentenceChars})),
	}
	if deps.Semantic, err = chunker.NewSemantic(deps.Embedder, cfg.Chunker(), opts...); err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize semantic chunker: %w", err)
	}
	if deps.DoublePass, err = chunker.NewDoublePass(deps.Embedder, cfg.Chunker(), opts...); err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize double-pass chunker: %w", err)
	}
	if deps.Refinery, err = refinery.NewContextRefinery(cfg.ContextSize, counter); err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize refinery: %w", err)
	}

	q, nc, err := buildQueue(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if nc != nil {
		deps.Queue = q
		deps.closers = append(deps.closers, func() error { nc.Close(); return nil })
	}
	return deps, nil
}

// Chunker returns the chunker for a strategy name; empty means semantic.
func (d Deps) Chunker(strategy string) (chunker.Chunker, error) {
	switch strategy {
	case "", StrategySemantic:
		return d.Semantic, nil
	case StrategyDoublePass:
		return d.DoublePass, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", chunker.ErrConfiguration, strategy)
	}
}

// Close releases connections held by the dependencies.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("failed to close dependency", "err", err)
		}
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		log.Info("using Redis embedding cache", "addr", cfg.RedisAddr)
		return c, nil
	case "memory":
		c := cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
		log.Info("using in-memory embedding cache", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
		return c, nil
	case "none":
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: redis, memory, none)", cfg.CacheProvider)
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return embedder, nil
	case "hash":
		log.Info("using offline hash embedder", "dimensions", cfg.EmbeddingDimensions)
		return embeddings.NewHashEmbedder(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid options: openai, hash)", cfg.EmbeddingProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, *nats.Conn, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nc, nil
	case "none", "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}
