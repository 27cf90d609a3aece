package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"ragpipe/internal/domain"
)

func results(contents ...string) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(contents))
	for i, c := range contents {
		out[i] = domain.ScoredChunk{SourceID: "doc", Index: i, Content: c, Similarity: 0.9}
	}
	return out
}

func TestQueryCache_GetPut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)

	if _, ok := c.Get("owner", "q", 5, 0.5); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("owner", "q", 5, 0.5, results("a"))

	got, ok := c.Get("owner", "q", 5, 0.5)
	if !ok || len(got) != 1 || got[0].Content != "a" {
		t.Fatalf("expected hit with [a], got %v %v", got, ok)
	}

	// Every key component matters.
	for _, miss := range []struct {
		owner, query string
		k            int
		min          float64
	}{
		{"other", "q", 5, 0.5},
		{"owner", "q2", 5, 0.5},
		{"owner", "q", 3, 0.5},
		{"owner", "q", 5, 0.7},
	} {
		if _, ok := c.Get(miss.owner, miss.query, miss.k, miss.min); ok {
			t.Errorf("expected miss for %+v", miss)
		}
	}
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("owner", "q", 5, 0.5, results("a"))

	got, _ := c.Get("owner", "q", 5, 0.5)
	got[0].Content = "mutated"

	again, _ := c.Get("owner", "q", 5, 0.5)
	if again[0].Content != "a" {
		t.Errorf("expected cached result to be unaffected, got %q", again[0].Content)
	}
}

func TestQueryCache_LRUEviction(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("o", "a", 5, 0, results("a"))
	c.Put("o", "b", 5, 0, results("b"))
	c.Get("o", "a", 5, 0)
	c.Put("o", "c", 5, 0, results("c"))

	if _, ok := c.Get("o", "b", 5, 0); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get("o", "a", 5, 0); !ok {
		t.Error("expected recently used entry to survive")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("o", "q", 5, 0, results("a"))
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("o", "q", 5, 0); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Size() != 0 {
		t.Errorf("expected expired entry to be removed, size %d", c.Size())
	}
}

func TestQueryCache_InvalidateOwner(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("a", "q", 5, 0, results("a"))
	c.Put("b", "q", 5, 0, results("b"))

	c.Invalidate("a")

	if _, ok := c.Get("a", "q", 5, 0); ok {
		t.Error("expected owner a to be invalidated")
	}
	if _, ok := c.Get("b", "q", 5, 0); !ok {
		t.Error("expected owner b to be untouched")
	}

	c.Put("a", "q", 5, 0, results("fresh"))
	if got, ok := c.Get("a", "q", 5, 0); !ok || got[0].Content != "fresh" {
		t.Error("expected entries written after invalidation to hit")
	}

	c.InvalidateAll()
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

type countingRetriever struct {
	calls int
	err   error
}

func (r *countingRetriever) Search(ctx context.Context, ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return results(query), nil
}

func TestCachedRetriever(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Search(ctx, "owner", "q", 5, 0.5); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", inner.calls)
	}

	r.Invalidate("owner")
	if _, err := r.Search(ctx, "owner", "q", 5, 0.5); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("expected backend call after invalidation, got %d", inner.calls)
	}

	inner.err = errors.New("boom")
	if _, err := r.Search(ctx, "owner", "other", 5, 0.5); err == nil {
		t.Error("expected backend error to propagate")
	}
}

// gatedRetriever blocks each search until release is closed and returns
// whatever snapshot holds when it was entered.
type gatedRetriever struct {
	entered  chan struct{}
	release  chan struct{}
	snapshot []domain.ScoredChunk
}

func (r *gatedRetriever) Search(ctx context.Context, ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, error) {
	snapshot := r.snapshot
	r.entered <- struct{}{}
	<-r.release
	return snapshot, nil
}

func TestCachedRetriever_InvalidateDuringSearch(t *testing.T) {
	inner := &gatedRetriever{
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		snapshot: results("old"),
	}
	c := NewQueryCache(10, time.Minute)
	r := NewCachedRetriever(inner, c)

	done := make(chan error, 1)
	go func() {
		_, err := r.Search(context.Background(), "owner", "q", 5, 0.5)
		done <- err
	}()

	<-inner.entered
	r.Invalidate("owner")
	close(inner.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if got, ok := c.Get("owner", "q", 5, 0.5); ok {
		t.Errorf("expected results from before the invalidation to be dropped, got %v", got)
	}

	// A search started after the invalidation is cached as usual.
	inner.snapshot = results("new")
	go func() {
		<-inner.entered
	}()
	if _, err := r.Search(context.Background(), "owner", "q", 5, 0.5); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get("owner", "q", 5, 0.5)
	if !ok || got[0].Content != "new" {
		t.Errorf("expected fresh result to be cached, got %v %v", got, ok)
	}
}
