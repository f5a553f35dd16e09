package refinery

import (
	"fmt"
	"strings"

	"semchunk/internal/chunker"
	"semchunk/internal/tokenizer"
)

// Refinery post-processes chunks produced by a chunker.
type Refinery interface {
	Refine(chunks []chunker.Chunk) ([]chunker.Chunk, error)
	IsAvailable() bool
}

// ContextRefinery attaches the tail of the previous chunk to each chunk's
// Context, so a chunk retrieved alone still carries what led into it.
type ContextRefinery struct {
	size    int
	counter tokenizer.Counter
}

// NewContextRefinery returns a refinery adding up to contextSize tokens of
// preceding text. A zero size leaves chunks untouched.
func NewContextRefinery(contextSize int, counter tokenizer.Counter) (*ContextRefinery, error) {
	if contextSize < 0 {
		return nil, fmt.Errorf("%w: context size must be >= 0, got %d", chunker.ErrConfiguration, contextSize)
	}
	if counter == nil {
		counter = tokenizer.Words{}
	}
	return &ContextRefinery{size: contextSize, counter: counter}, nil
}

func (r *ContextRefinery) IsAvailable() bool { return r != nil && r.counter != nil }

// Refine returns copies of chunks with Context set. Chunk text and offsets
// are never changed.
func (r *ContextRefinery) Refine(chunks []chunker.Chunk) ([]chunker.Chunk, error) {
	out := make([]chunker.Chunk, len(chunks))
	copy(out, chunks)
	if r.size == 0 {
		return out, nil
	}
	for i := 1; i < len(out); i++ {
		out[i].Context = r.tail(chunks[i-1].Text)
	}
	return out, nil
}

// tail returns the longest run of trailing words of text whose token count
// fits the context size.
func (r *ContextRefinery) tail(text string) string {
	words := strings.Fields(text)
	best := ""
	for k := len(words) - 1; k >= 0; k-- {
		candidate := strings.Join(words[k:], " ")
		if r.counter.Count(candidate) > r.size {
			break
		}
		best = candidate
	}
	return best
}
