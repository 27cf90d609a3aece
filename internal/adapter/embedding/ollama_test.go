package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragpipe/internal/domain"
)

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Prompt == "fail" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{float64(len(req.Prompt)), 1, 0}})
	}))
}

func TestOllamaEmbedder_EmbedBatchKeepsOrder(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaOptions{BaseURL: srv.URL, Model: "nomic-embed-text", Workers: 3})
	values := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg"}

	embeddings, err := e.EmbedBatch(context.Background(), values)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	for i, emb := range embeddings {
		if int(emb[0]) != len(values[i]) {
			t.Errorf("embedding %d belongs to the wrong input: %v", i, emb)
		}
	}
	if e.Dimension() != 768 {
		t.Errorf("expected known dimension 768, got %d", e.Dimension())
	}
}

func TestOllamaEmbedder_Failure(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaOptions{BaseURL: srv.URL})
	_, err := e.EmbedBatch(context.Background(), []string{"ok", "fail"})

	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

func TestOllamaEmbedder_Cancelled(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewOllamaEmbedder(OllamaOptions{BaseURL: srv.URL})
	if _, err := e.EmbedOne(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
