package vector

import (
	"sort"

	"ragpipe/internal/domain"
)

// Rank keeps the chunks scoring strictly above minSimilarity, orders them by
// similarity (highest first, ties by source and position) and truncates the
// result to limit. A non-positive limit keeps everything.
func Rank(scored []domain.ScoredChunk, minSimilarity float64, limit int) []domain.ScoredChunk {
	kept := make([]domain.ScoredChunk, 0, len(scored))
	for _, s := range scored {
		if s.Similarity > minSimilarity {
			kept = append(kept, s)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		if kept[i].SourceID != kept[j].SourceID {
			return kept[i].SourceID < kept[j].SourceID
		}
		return kept[i].Index < kept[j].Index
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
