package chunker

import (
	"context"

	"semchunk/internal/embeddings"
)

// Chunker splits text into ordered, contiguous chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]Chunk, error)
	IsAvailable() bool
}

// Chunk represents a slice of the input text. Text is exactly
// input[StartOffset:EndOffset]; offsets are byte offsets.
type Chunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	TokenCount  int    `json:"token_count"`

	// SentenceStart and SentenceEnd are the half-open sentence range the
	// chunk was assembled from.
	SentenceStart int `json:"sentence_start"`
	SentenceEnd   int `json:"sentence_end"`

	// Context is neighboring text added by a refinery; empty otherwise.
	Context string `json:"context,omitempty"`
}

// Group is a contiguous run of sentences [Start, End) under construction.
type Group struct {
	Start      int
	End        int
	Centroid   embeddings.Vector
	TokenCount int
}

// Len returns the number of sentences in the group.
func (g Group) Len() int {
	return g.End - g.Start
}
