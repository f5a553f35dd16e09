package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"

	"semchunk/internal/chunker"
)

// Config holds runtime configuration for the chunking service.
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080" validate:"gt=0,lte=65535"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760" validate:"gt=0"` // 10MB in bytes

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"none" validate:"oneof=nats none"` // "nats" enables the chunk worker
	QueueURL      string `env:"QUEUE_URL" validate:"required_if=QueueProvider nats"`

	// Embeddings
	EmbeddingProvider    string `env:"EMBEDDING_PROVIDER" envDefault:"openai" validate:"oneof=openai hash"` // "hash" runs offline
	OpenAIKey            string `env:"OPENAI_API_KEY" validate:"required_if=EmbeddingProvider openai"`
	EmbeddingModel       string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions  int    `env:"EMBEDDING_DIMENSIONS" envDefault:"0" validate:"gte=0"`
	EmbeddingBatchSize   int    `env:"EMBEDDING_BATCH_SIZE" envDefault:"64" validate:"gt=0"`
	EmbeddingConcurrency int    `env:"EMBEDDING_CONCURRENCY" envDefault:"4" validate:"gt=0"`

	// Cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"memory" validate:"oneof=redis memory none"`
	RedisAddr     string        `env:"REDIS_ADDR" validate:"required_if=CacheProvider redis"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheSize     int           `env:"CACHE_SIZE" envDefault:"10000" validate:"gt=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"24h" validate:"gte=0"`

	// Tokenizer and splitting
	Tokenizer         string `env:"TOKENIZER" envDefault:"words" validate:"oneof=tiktoken words"`
	TokenizerEncoding string `env:"TOKENIZER_ENCODING" envDefault:"cl100k_base"`
	MinSentenceChars  int    `env:"MIN_SENTENCE_CHARS" envDefault:"12" validate:"gte=0"`

	// Chunking
	SimilarityThreshold float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	MaxChunkTokens      int     `env:"MAX_CHUNK_TOKENS" envDefault:"512"`
	MinChunkTokens      int     `env:"MIN_CHUNK_TOKENS" envDefault:"0"`
	SkipWindow          int     `env:"SKIP_WINDOW" envDefault:"1"`
	CentroidMode        string  `env:"CENTROID_MODE" envDefault:"mean"`
	StrictSimilarity    bool    `env:"STRICT_SIMILARITY" envDefault:"false"`
	SimilarityWindow    int     `env:"SIMILARITY_WINDOW" envDefault:"0"`
	ContextSize         int     `env:"CONTEXT_SIZE" envDefault:"0" validate:"gte=0"`
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	return load(nil)
}

// load parses environ, or the process environment when environ is nil.
func load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks service settings and the chunking parameters they map to.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Chunker().Validate(true)
}

// Chunker returns the chunking parameters.
func (c Config) Chunker() chunker.Config {
	return chunker.Config{
		SimilarityThreshold: c.SimilarityThreshold,
		MaxChunkTokens:      c.MaxChunkTokens,
		MinChunkTokens:      c.MinChunkTokens,
		SkipWindow:          c.SkipWindow,
		CentroidMode:        chunker.CentroidMode(c.CentroidMode),
		StrictSimilarity:    c.StrictSimilarity,
		SimilarityWindow:    c.SimilarityWindow,
		BatchSize:           c.EmbeddingBatchSize,
		Concurrency:         c.EmbeddingConcurrency,
	}
}
