package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is used when no encoding or model is given.
	DefaultEncoding = "cl100k_base"

	KindTiktoken = "tiktoken"
	KindWords    = "words"
)

// Counter counts tokens in a piece of text.
type Counter interface {
	Count(text string) int
}

// Words approximates tokens by whitespace-delimited words. It is the cheap,
// dependency-free counter used by tests and offline runs.
type Words struct{}

func (Words) Count(text string) int {
	return len(strings.Fields(text))
}

// Tiktoken counts BPE tokens with an OpenAI encoding.
type Tiktoken struct {
	encoding string
	mu       sync.Mutex
	tke      *tiktoken.Tiktoken
}

// NewTiktoken resolves modelOrEncoding first as an encoding name, then as a
// model name.
func NewTiktoken(modelOrEncoding string) (*Tiktoken, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: unknown encoding or model %q: %w", modelOrEncoding, err)
		}
	}
	return &Tiktoken{encoding: modelOrEncoding, tke: tke}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tke.Encode(text, nil, nil))
}

// Encoding returns the encoding or model name the counter was built with.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

// New builds a counter by kind ("tiktoken" or "words").
func New(kind, encoding string) (Counter, error) {
	switch strings.ToLower(kind) {
	case KindWords, "":
		return Words{}, nil
	case KindTiktoken:
		return NewTiktoken(encoding)
	default:
		return nil, fmt.Errorf("tokenizer: unknown kind %q (valid: tiktoken, words)", kind)
	}
}
