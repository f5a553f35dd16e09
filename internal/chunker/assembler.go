package chunker

import (
	"fmt"

	"semchunk/internal/sentence"
)

// Assemble converts finalized groups into chunks whose text is sliced from
// the original input. Groups must be non-empty and partition sents in order,
// and the resulting chunks must tile the text byte for byte; anything else is
// reported as ErrInternalInvariant.
func Assemble(text string, sents []sentence.Sentence, groups []Group) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(groups))
	next, prevEnd := 0, 0
	for i, g := range groups {
		if g.Len() <= 0 {
			return nil, fmt.Errorf("%w: group %d is empty [%d,%d)", ErrInternalInvariant, i, g.Start, g.End)
		}
		if g.Start != next {
			return nil, fmt.Errorf("%w: group %d starts at sentence %d, want %d", ErrInternalInvariant, i, g.Start, next)
		}
		if g.End > len(sents) {
			return nil, fmt.Errorf("%w: group %d ends at sentence %d of %d", ErrInternalInvariant, i, g.End, len(sents))
		}
		start, end := sents[g.Start].Start, sents[g.End-1].End
		if start < 0 || end > len(text) || start > end {
			return nil, fmt.Errorf("%w: group %d spans invalid offsets [%d,%d) of %d bytes", ErrInternalInvariant, i, start, end, len(text))
		}
		if start != prevEnd {
			return nil, fmt.Errorf("%w: group %d starts at byte %d, want %d", ErrInternalInvariant, i, start, prevEnd)
		}
		tokens := 0
		for _, s := range sents[g.Start:g.End] {
			tokens += s.TokenCount
		}
		chunks = append(chunks, Chunk{
			Index:         i,
			Text:          text[start:end],
			StartOffset:   start,
			EndOffset:     end,
			TokenCount:    tokens,
			SentenceStart: g.Start,
			SentenceEnd:   g.End,
		})
		next, prevEnd = g.End, end
	}
	if next != len(sents) {
		return nil, fmt.Errorf("%w: groups cover %d of %d sentences", ErrInternalInvariant, next, len(sents))
	}
	if len(groups) > 0 && prevEnd != len(text) {
		return nil, fmt.Errorf("%w: chunks end at byte %d of %d", ErrInternalInvariant, prevEnd, len(text))
	}
	return chunks, nil
}
