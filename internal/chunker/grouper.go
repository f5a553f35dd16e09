package chunker

import (
	"semchunk/internal/embeddings"
	"semchunk/internal/sentence"
)

// accumulator is the open group of the forward pass. It is a plain value
// owned by the loop in GroupSentences.
type accumulator struct {
	start, end int
	tokens     int
	mode       CentroidMode
	sum        []float64
	centroid   embeddings.Vector
}

func openGroup(idx int, s sentence.Sentence, mode CentroidMode) accumulator {
	acc := accumulator{
		start:    idx,
		end:      idx + 1,
		tokens:   s.TokenCount,
		mode:     mode,
		centroid: s.Embedding.Clone(),
	}
	if mode == CentroidMean {
		acc.sum = make([]float64, len(s.Embedding))
		for k, x := range s.Embedding {
			acc.sum[k] = float64(x)
		}
	}
	return acc
}

func (a *accumulator) add(s sentence.Sentence) {
	a.end++
	a.tokens += s.TokenCount
	if a.mode == CentroidLast || len(a.sum) != len(s.Embedding) {
		a.centroid = s.Embedding.Clone()
		return
	}
	n := float64(a.end - a.start)
	for k, x := range s.Embedding {
		a.sum[k] += float64(x)
		a.centroid[k] = float32(a.sum[k] / n)
	}
}

// accepts decides whether s extends the open group. The token budget always
// wins; unless StrictSimilarity is set, a group still below the minimum size
// takes s without a similarity test; otherwise s must be similar enough to
// the centroid.
func (a *accumulator) accepts(s sentence.Sentence, cfg Config) bool {
	if a.tokens+s.TokenCount > cfg.MaxChunkTokens {
		return false
	}
	if !cfg.StrictSimilarity && a.tokens < cfg.MinChunkTokens {
		return true
	}
	sim := embeddings.CosineSimilarity(s.Embedding, a.centroid)
	return float64(sim) >= cfg.SimilarityThreshold
}

func (a *accumulator) group() Group {
	return Group{
		Start:      a.start,
		End:        a.end,
		Centroid:   a.centroid,
		TokenCount: a.tokens,
	}
}

// GroupSentences runs the single forward pass over embedded sentences and
// returns contiguous groups covering every sentence once, in order.
// A sentence whose own token count exceeds MaxChunkTokens is never split and
// always ends up alone in its group.
func GroupSentences(sents []sentence.Sentence, cfg Config) []Group {
	if len(sents) == 0 {
		return nil
	}
	groups := make([]Group, 0, len(sents)/2+1)
	acc := openGroup(0, sents[0], cfg.CentroidMode)
	for i := 1; i < len(sents); i++ {
		if acc.accepts(sents[i], cfg) {
			acc.add(sents[i])
			continue
		}
		groups = append(groups, acc.group())
		acc = openGroup(i, sents[i], cfg.CentroidMode)
	}
	groups = append(groups, acc.group())
	return absorbTail(groups, cfg)
}

// absorbTail folds an undersized final group into its predecessor without a
// similarity test, as long as the result stays within the token budget.
func absorbTail(groups []Group, cfg Config) []Group {
	n := len(groups)
	if n < 2 {
		return groups
	}
	last, prev := groups[n-1], groups[n-2]
	if last.TokenCount >= cfg.MinChunkTokens {
		return groups
	}
	if prev.TokenCount+last.TokenCount > cfg.MaxChunkTokens {
		return groups
	}
	groups[n-2] = combine(groups[n-2:])
	return groups[:n-1]
}

// combine merges a contiguous run of groups. The centroid is the
// token-weighted mean of the members' centroids; when every member has zero
// tokens the members are weighted equally.
func combine(run []Group) Group {
	out := Group{Start: run[0].Start, End: run[len(run)-1].End}
	for _, g := range run {
		out.TokenCount += g.TokenCount
	}
	dim := len(run[0].Centroid)
	sum := make([]float64, dim)
	var total float64
	for _, g := range run {
		w := float64(g.TokenCount)
		if out.TokenCount == 0 {
			w = 1
		}
		if len(g.Centroid) != dim {
			continue
		}
		total += w
		for k, x := range g.Centroid {
			sum[k] += w * float64(x)
		}
	}
	out.Centroid = make(embeddings.Vector, dim)
	if total == 0 {
		return out
	}
	for k := range sum {
		out.Centroid[k] = float32(sum[k] / total)
	}
	return out
}
