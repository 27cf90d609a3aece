package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

// MockEmbedder produces deterministic bag-of-words vectors: each lowercased
// word is hashed into one of dimension buckets and the result is L2
// normalised. Texts sharing words score as similar, which is enough for
// offline runs and tests.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, values []string) ([][]float32, error) {
	embeddings := make([][]float32, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return nil, domain.AsEmbeddingError("batch", err)
		}
		embeddings[i] = e.embed(v)
	}
	return embeddings, nil
}

func (e *MockEmbedder) EmbedOne(ctx context.Context, value string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.AsEmbeddingError("query", err)
	}
	return e.embed(value), nil
}

func (e *MockEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dimension)]++
	}
	return vector.Normalize(v)
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
