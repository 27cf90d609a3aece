package sqlstore

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"testing"

	"ragpipe/internal/adapter/storetest"
	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

func newTestStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return st
}

func TestSQLiteChunkStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.ChunkStore {
		return newTestStore(t)
	})
}

func TestSQLiteChunkStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.sqlite")
	ctx := context.Background()

	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceSource(ctx, "owner", "doc", []domain.EmbeddedChunk{
		{SourceID: "doc", Index: 0, Content: "kept", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSchemaInfo(ctx, domain.SchemaInfo{Version: 1, ConfigHash: "abc", Dimension: 2}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	info, err := st.GetSchemaInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.ConfigHash != "abc" || info.Dimension != 2 {
		t.Errorf("unexpected schema info: %+v", info)
	}
	n, err := st.Count(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 chunk after reopen, got %d", n)
	}
}

func TestSQLiteChunkStore_QueryDimensionMismatch(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.Insert(ctx, "owner", domain.EmbeddedChunk{SourceID: "doc", Content: "x", Embedding: []float32{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SimilaritySearch(ctx, "owner", []float32{1, 0, 0}, 0, 5); err == nil {
		t.Error("expected error for query of wrong dimension")
	}
}

func TestSQLiteChunkStore_ClearAndOwners(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	for _, owner := range []string{"b", "a"} {
		if err := st.Insert(ctx, owner, domain.EmbeddedChunk{SourceID: "s", Content: "x", Embedding: []float32{1, 1}}); err != nil {
			t.Fatal(err)
		}
	}
	owners, err := st.Owners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 2 || owners[0] != "a" || owners[1] != "b" {
		t.Errorf("expected [a b], got %v", owners)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	owners, err = st.Owners(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 0 {
		t.Errorf("expected no owners after clear, got %v", owners)
	}
	if err := st.Insert(ctx, "a", domain.EmbeddedChunk{SourceID: "s", Content: "x", Embedding: []float32{1, 1, 1}}); err != nil {
		t.Errorf("expected new dimension to be accepted after clear, got %v", err)
	}
}

func TestSimilarityFunction(t *testing.T) {
	got, err := similarityImpl(nil, []driver.Value{
		vector.EncodeEmbedding([]float32{1, 0}),
		vector.EncodeEmbedding([]float32{1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sim, ok := got.(float64); !ok || sim < 0.9999 {
		t.Errorf("expected similarity 1, got %v", got)
	}

	got, err = similarityImpl(nil, []driver.Value{nil, vector.EncodeEmbedding([]float32{1})})
	if err != nil || got != nil {
		t.Errorf("expected NULL for NULL argument, got %v, %v", got, err)
	}

	if _, err := similarityImpl(nil, []driver.Value{"text", "text"}); err == nil {
		t.Error("expected error for non-BLOB argument")
	}
}
