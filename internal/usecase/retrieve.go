package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.5
)

// RetrieveUseCase embeds a query and ranks one owner's chunks against it.
type RetrieveUseCase struct {
	embedder port.Embedder
	store    port.ChunkStore
	logger   *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(embedder port.Embedder, store port.ChunkStore, logger *slog.Logger) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Retrieve searches with the default k and threshold.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, ownerID, query string) ([]domain.ScoredChunk, error) {
	return u.Search(ctx, ownerID, query, DefaultTopK, DefaultMinSimilarity)
}

// Search returns at most k of the owner's chunks with similarity strictly
// above minSimilarity, highest first. A non-positive k means DefaultTopK.
// It never writes.
func (u *RetrieveUseCase) Search(ctx context.Context, ownerID, query string, k int, minSimilarity float64) ([]domain.ScoredChunk, error) {
	if ownerID == "" {
		return nil, domain.ErrOwnerRequired
	}
	if k <= 0 {
		k = DefaultTopK
	}

	queryVec, err := u.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, domain.AsEmbeddingError("query", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := u.store.SimilaritySearch(ctx, ownerID, queryVec, minSimilarity, k)
	if err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}

	// Stores are external; hold them to the ordering and threshold contract.
	results = vector.Rank(results, minSimilarity, k)

	u.logger.Debug("retrieved chunks",
		"owner", ownerID,
		"k", k,
		"min_similarity", minSimilarity,
		"results", len(results),
	)
	return results, nil
}

// SearchAll runs several queries against r concurrently. Results are in
// query order; the first failure cancels the rest.
func SearchAll(ctx context.Context, r port.Retriever, ownerID string, queries []string, k int, minSimilarity float64) ([][]domain.ScoredChunk, error) {
	results := make([][]domain.ScoredChunk, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, q := range queries {
		g.Go(func() error {
			res, err := r.Search(gctx, ownerID, q, k, minSimilarity)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
