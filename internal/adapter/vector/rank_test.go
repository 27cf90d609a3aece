package vector

import (
	"testing"

	"ragpipe/internal/domain"
)

func TestRank(t *testing.T) {
	scored := []domain.ScoredChunk{
		{SourceID: "s", Index: 0, Content: "low", Similarity: 0.2},
		{SourceID: "s", Index: 1, Content: "mid", Similarity: 0.7},
		{SourceID: "s", Index: 2, Content: "top", Similarity: 0.95},
		{SourceID: "s", Index: 3, Content: "edge", Similarity: 0.5},
		{SourceID: "s", Index: 4, Content: "high", Similarity: 0.8},
	}

	got := Rank(scored, 0.5, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Content != "top" || got[1].Content != "high" {
		t.Errorf("expected [top high], got [%s %s]", got[0].Content, got[1].Content)
	}

	all := Rank(scored, 0.5, 0)
	for _, s := range all {
		if s.Similarity <= 0.5 {
			t.Errorf("expected similarity > 0.5, got %v (%s)", s.Similarity, s.Content)
		}
	}
	if len(all) != 3 {
		t.Errorf("expected 3 results above threshold, got %d", len(all))
	}
}

func TestRankBreaksTiesByPosition(t *testing.T) {
	scored := []domain.ScoredChunk{
		{SourceID: "b", Index: 0, Similarity: 0.9},
		{SourceID: "a", Index: 1, Similarity: 0.9},
		{SourceID: "a", Index: 0, Similarity: 0.9},
	}
	got := Rank(scored, 0, 0)
	if got[0].SourceID != "a" || got[0].Index != 0 || got[1].Index != 1 || got[2].SourceID != "b" {
		t.Errorf("unexpected tie order: %+v", got)
	}
}
