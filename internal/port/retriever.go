package port

import (
	"context"

	"ragpipe/internal/domain"
)

// Retriever searches an owner's chunks for a free-text query.
type Retriever interface {
	Search(ctx context.Context, ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, error)
}
