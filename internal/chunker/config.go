package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CentroidMode selects how a group's representative embedding evolves.
type CentroidMode string

const (
	// CentroidMean keeps the running mean of member sentence embeddings.
	CentroidMean CentroidMode = "mean"
	// CentroidLast uses the embedding of the most recently added sentence.
	CentroidLast CentroidMode = "last"
)

// Config controls semantic grouping.
type Config struct {
	SimilarityThreshold float64      `validate:"gte=0,lte=1"`
	MaxChunkTokens      int          `validate:"gt=0"`
	MinChunkTokens      int          `validate:"gte=0,ltefield=MaxChunkTokens"`
	SkipWindow          int          `validate:"gte=0"`
	CentroidMode        CentroidMode `validate:"oneof=mean last"`

	// StrictSimilarity requires every join to pass the similarity test, even
	// for groups still below MinChunkTokens. Only the tail merge then skips
	// the test, and chunks other than the last may stay undersized.
	StrictSimilarity bool

	// SimilarityWindow embeds each sentence together with this many
	// neighbors on each side. 0 embeds sentences alone.
	SimilarityWindow int `validate:"gte=0"`

	// BatchSize is the number of texts per provider call; Concurrency bounds
	// the provider calls in flight for one text.
	BatchSize   int `validate:"gt=0"`
	Concurrency int `validate:"gt=0"`
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		MaxChunkTokens:      512,
		MinChunkTokens:      0,
		SkipWindow:          1,
		CentroidMode:        CentroidMean,
		SimilarityWindow:    0,
		BatchSize:           64,
		Concurrency:         4,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. doublePass additionally requires a
// skip window of at least one group.
func (c Config) Validate(doublePass bool) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
	}
	if doublePass && c.SkipWindow < 1 {
		return fmt.Errorf("%w: SkipWindow must be >= 1 for double-pass chunking, got %d", ErrConfiguration, c.SkipWindow)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s, got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s must satisfy %s %s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}
