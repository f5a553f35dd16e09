package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"semchunk/internal/embeddings"
	"semchunk/internal/tokenizer"
)

// DefaultMinCharacters is the shortest fragment kept as its own sentence.
const DefaultMinCharacters = 12

// Sentence is a span of the input text. Start and End are half-open byte
// offsets; Text is always input[Start:End]. Embedding is empty until a
// chunker attaches one to its own copy.
type Sentence struct {
	Text       string
	Start      int
	End        int
	TokenCount int
	Embedding  embeddings.Vector
}

// Splitter turns text into an ordered sequence of sentences that covers the
// text contiguously: the first starts at 0, each starts where the previous
// ends and the last ends at len(text).
type Splitter interface {
	Split(text string) []Sentence
}

// Options controls the rule-based splitter.
type Options struct {
	// MinCharacters merges fragments with fewer non-space runes into a neighbor.
	MinCharacters int
}

// RuleSplitter splits on sentence punctuation followed by whitespace and on
// newlines. Whitespace after a boundary stays with the preceding sentence.
type RuleSplitter struct {
	counter tokenizer.Counter
	minChar int
}

// New returns a RuleSplitter counting tokens with counter.
func New(counter tokenizer.Counter, opts Options) *RuleSplitter {
	if counter == nil {
		counter = tokenizer.Words{}
	}
	minChar := opts.MinCharacters
	if minChar < 1 {
		minChar = 1
	}
	return &RuleSplitter{counter: counter, minChar: minChar}
}

func (s *RuleSplitter) Split(text string) []Sentence {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	spans := mergeShort(text, boundaries(text), s.minChar)
	out := make([]Sentence, len(spans))
	for i, sp := range spans {
		t := text[sp[0]:sp[1]]
		out[i] = Sentence{
			Text:       t,
			Start:      sp[0],
			End:        sp[1],
			TokenCount: s.counter.Count(t),
		}
	}
	return out
}

// boundaries returns raw [start, end) spans covering text.
func boundaries(text string) [][2]int {
	var spans [][2]int
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size
		cut := false
		switch {
		case r == '\n':
			cut = true
		case isTerminal(r):
			for next < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[next:])
				if !isTerminal(r2) && !isCloser(r2) {
					break
				}
				next += s2
			}
			if next == len(text) {
				cut = true
			} else if r2, _ := utf8.DecodeRuneInString(text[next:]); unicode.IsSpace(r2) {
				cut = true
			}
		}
		if cut {
			next = skipSpace(text, next)
			spans = append(spans, [2]int{start, next})
			start = next
		}
		i = next
	}
	if start < len(text) {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

// mergeShort folds fragments below minChar forward into the next span, and a
// short trailing fragment back into the previous one.
func mergeShort(text string, spans [][2]int, minChar int) [][2]int {
	out := make([][2]int, 0, len(spans))
	pending := -1
	for _, sp := range spans {
		if pending >= 0 {
			sp[0] = pending
			pending = -1
		}
		if visibleRunes(text[sp[0]:sp[1]]) < minChar {
			pending = sp[0]
			continue
		}
		out = append(out, sp)
	}
	if pending >= 0 {
		if len(out) == 0 {
			return [][2]int{{pending, len(text)}}
		}
		out[len(out)-1][1] = len(text)
	}
	return out
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func visibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}
