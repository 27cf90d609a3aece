// Package storetest holds behaviour tests shared by every port.ChunkStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Factory returns an empty store. The store is closed by the suite.
type Factory func(t *testing.T) port.ChunkStore

func Run(t *testing.T, newStore Factory) {
	t.Run("SimilarityExample", func(t *testing.T) { testSimilarityExample(t, newStore(t)) })
	t.Run("OwnerIsolation", func(t *testing.T) { testOwnerIsolation(t, newStore(t)) })
	t.Run("ReplaceSource", func(t *testing.T) { testReplaceSource(t, newStore(t)) })
	t.Run("ReplaceSourceAllOrNothing", func(t *testing.T) { testReplaceAllOrNothing(t, newStore(t)) })
	t.Run("Limit", func(t *testing.T) { testLimit(t, newStore(t)) })
	t.Run("EmptyOwner", func(t *testing.T) { testEmptyOwner(t, newStore(t)) })
	t.Run("Cancelled", func(t *testing.T) { testCancelled(t, newStore(t)) })
	t.Run("Owners", func(t *testing.T) { testOwners(t, newStore(t)) })
}

func chunk(source string, index int, content string, emb ...float32) domain.EmbeddedChunk {
	return domain.EmbeddedChunk{SourceID: source, Index: index, Content: content, Embedding: emb}
}

func testSimilarityExample(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	chunks := []domain.EmbeddedChunk{
		chunk("doc", 0, "same", 1, 0),
		chunk("doc", 1, "orthogonal", 0, 1),
		chunk("doc", 2, "close", 0.9, 0.1),
		chunk("doc", 3, "opposite", -1, 0),
	}
	if err := st.ReplaceSource(ctx, "agent-1", "doc", chunks); err != nil {
		t.Fatalf("ReplaceSource failed: %v", err)
	}

	results, err := st.SimilaritySearch(ctx, "agent-1", []float32{1, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Content != "same" || results[1].Content != "close" {
		t.Errorf("expected [same close], got [%s %s]", results[0].Content, results[1].Content)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-5 {
		t.Errorf("expected similarity 1.0, got %v", results[0].Similarity)
	}
	if math.Abs(results[1].Similarity-0.9939) > 1e-3 {
		t.Errorf("expected similarity ~0.994, got %v", results[1].Similarity)
	}
	if results[1].SourceID != "doc" || results[1].Index != 2 {
		t.Errorf("expected doc#2, got %s#%d", results[1].SourceID, results[1].Index)
	}
}

func testOwnerIsolation(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	if err := st.ReplaceSource(ctx, "owner-a", "shared", []domain.EmbeddedChunk{chunk("shared", 0, "a private", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceSource(ctx, "owner-b", "shared", []domain.EmbeddedChunk{chunk("shared", 0, "b private", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := st.Insert(ctx, "owner-b", chunk("extra", 0, "b extra", 0.8, 0.2)); err != nil {
		t.Fatal(err)
	}

	results, err := st.SimilaritySearch(ctx, "owner-a", []float32{1, 0}, -1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "a private" {
		t.Errorf("expected only owner-a's chunk, got %+v", results)
	}

	results, err = st.SimilaritySearch(ctx, "owner-c", []float32{1, 0}, -1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for unknown owner, got %+v", results)
	}

	n, err := st.Count(ctx, "owner-b")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 chunks for owner-b, got %d", n)
	}
}

func testReplaceSource(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	first := []domain.EmbeddedChunk{chunk("doc", 0, "v1 a", 1, 0), chunk("doc", 1, "v1 b", 0, 1)}
	if err := st.ReplaceSource(ctx, "owner", "doc", first); err != nil {
		t.Fatal(err)
	}
	second := []domain.EmbeddedChunk{chunk("doc", 0, "v2", 1, 0)}
	if err := st.ReplaceSource(ctx, "owner", "doc", second); err != nil {
		t.Fatal(err)
	}
	// Retrying the same write must not duplicate rows.
	if err := st.ReplaceSource(ctx, "owner", "doc", second); err != nil {
		t.Fatal(err)
	}

	n, err := st.Count(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 chunk after replace, got %d", n)
	}

	results, err := st.SimilaritySearch(ctx, "owner", []float32{1, 0}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "v2" {
		t.Errorf("expected only v2, got %+v", results)
	}
}

func testReplaceAllOrNothing(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	if err := st.ReplaceSource(ctx, "owner", "doc", []domain.EmbeddedChunk{chunk("doc", 0, "original", 1, 0)}); err != nil {
		t.Fatal(err)
	}

	bad := []domain.EmbeddedChunk{
		chunk("doc", 0, "new a", 1, 0),
		chunk("doc", 1, "new b", 1, 0, 0),
	}
	err := st.ReplaceSource(ctx, "owner", "doc", bad)
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	results, err := st.SimilaritySearch(ctx, "owner", []float32{1, 0}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "original" {
		t.Errorf("expected original chunk to survive failed replace, got %+v", results)
	}
}

func testLimit(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	var chunks []domain.EmbeddedChunk
	for i := 0; i < 8; i++ {
		chunks = append(chunks, chunk("doc", i, "c", 1, float32(i)*0.1))
	}
	if err := st.ReplaceSource(ctx, "owner", "doc", chunks); err != nil {
		t.Fatal(err)
	}

	results, err := st.SimilaritySearch(ctx, "owner", []float32{1, 0}, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d: expected index %d, got %d", i, i, r.Index)
		}
		if i > 0 && !(results[i-1].Similarity > r.Similarity) {
			t.Errorf("results not strictly descending at %d: %v then %v", i, results[i-1].Similarity, r.Similarity)
		}
	}
}

func testEmptyOwner(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	ctx := context.Background()

	if err := st.Insert(ctx, "", chunk("doc", 0, "x", 1)); !errors.Is(err, domain.ErrOwnerRequired) {
		t.Errorf("expected ErrOwnerRequired from Insert, got %v", err)
	}
	if _, err := st.SimilaritySearch(ctx, "", []float32{1}, 0, 5); !errors.Is(err, domain.ErrOwnerRequired) {
		t.Errorf("expected ErrOwnerRequired from SimilaritySearch, got %v", err)
	}
}

func testCancelled(t *testing.T, st port.ChunkStore) {
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := st.ReplaceSource(ctx, "owner", "doc", []domain.EmbeddedChunk{chunk("doc", 0, "x", 1, 0)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	n, err := st.Count(context.Background(), "owner")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected nothing persisted after cancellation, got %d chunks", n)
	}
}

func testOwners(t *testing.T, st port.ChunkStore) {
	defer st.Close()
	lister, ok := st.(port.OwnerLister)
	if !ok {
		t.Skip("store does not list owners")
	}
	ctx := context.Background()

	for _, owner := range []string{"b", "a"} {
		if err := st.ReplaceSource(ctx, owner, "doc", []domain.EmbeddedChunk{chunk("doc", 0, owner, 1, 0)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.ReplaceSource(ctx, "a", "other", []domain.EmbeddedChunk{chunk("other", 0, "a2", 0, 1)}); err != nil {
		t.Fatal(err)
	}

	owners, err := lister.Owners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 2 || owners[0] != "a" || owners[1] != "b" {
		t.Fatalf("expected owners [a b], got %v", owners)
	}

	// Emptying one of two sources keeps the owner; emptying the last drops it.
	if err := st.ReplaceSource(ctx, "a", "doc", nil); err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceSource(ctx, "b", "doc", nil); err != nil {
		t.Fatal(err)
	}
	owners, err = lister.Owners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 1 || owners[0] != "a" {
		t.Errorf("expected owners [a] after emptying b, got %v", owners)
	}
}
