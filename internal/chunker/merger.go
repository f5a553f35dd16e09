package chunker

import "semchunk/internal/embeddings"

// MergeGroups is the second pass of double-pass chunking. For each group i it
// looks at groups i+2 .. i+1+SkipWindow (the neighbor was already compared in
// the first pass) and absorbs everything up to the farthest group j that is
// similar to i and keeps the merged run within MaxChunkTokens. Intermediate
// groups are pulled in regardless of similarity so chunks stay contiguous.
// Scanning resumes after the merged run, so the output never has more groups
// than the input.
func MergeGroups(groups []Group, cfg Config) []Group {
	if len(groups) < 3 || cfg.SkipWindow < 1 {
		return groups
	}
	prefix := make([]int, len(groups)+1)
	for i, g := range groups {
		prefix[i+1] = prefix[i] + g.TokenCount
	}

	out := make([]Group, 0, len(groups))
	for i := 0; i < len(groups); {
		j := farthestMatch(groups, prefix, i, cfg)
		if j < 0 {
			out = append(out, groups[i])
			i++
			continue
		}
		out = append(out, combine(groups[i:j+1]))
		i = j + 1
	}
	return out
}

func farthestMatch(groups []Group, prefix []int, i int, cfg Config) int {
	last := min(i+1+cfg.SkipWindow, len(groups)-1)
	for j := last; j >= i+2; j-- {
		if prefix[j+1]-prefix[i] > cfg.MaxChunkTokens {
			continue
		}
		sim := embeddings.CosineSimilarity(groups[i].Centroid, groups[j].Centroid)
		if float64(sim) >= cfg.SimilarityThreshold {
			return j
		}
	}
	return -1
}
