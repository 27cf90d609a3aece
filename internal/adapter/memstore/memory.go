package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

// MemoryStore is a process-local chunk store. It is used by tests and by
// the "memory" store driver for throwaway runs.
type MemoryStore struct {
	mu        sync.RWMutex
	owners    map[string]map[string][]domain.EmbeddedChunk
	dimension int
	schema    domain.SchemaInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners: make(map[string]map[string][]domain.EmbeddedChunk),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, ownerID string, chunk domain.EmbeddedChunk) error {
	if err := checkScope(ctx, ownerID); err != nil {
		return domain.AsStoreError("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := checkDimension(s.dimension, chunk.Embedding)
	if err != nil {
		return domain.AsStoreError("insert", err)
	}
	s.dimension = dim
	sources := s.ownerSources(ownerID)
	sources[chunk.SourceID] = append(sources[chunk.SourceID], copyChunk(chunk))
	return nil
}

func (s *MemoryStore) ReplaceSource(ctx context.Context, ownerID, sourceID string, chunks []domain.EmbeddedChunk) error {
	if err := checkScope(ctx, ownerID); err != nil {
		return domain.AsStoreError("replace source", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	replacement := make([]domain.EmbeddedChunk, 0, len(chunks))
	for _, c := range chunks {
		var err error
		if dim, err = checkDimension(dim, c.Embedding); err != nil {
			return domain.AsStoreError("replace source", err)
		}
		c.SourceID = sourceID
		replacement = append(replacement, copyChunk(c))
	}

	s.dimension = dim
	sources := s.ownerSources(ownerID)
	if len(replacement) == 0 {
		delete(sources, sourceID)
		return nil
	}
	sources[sourceID] = replacement
	return nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, ownerID string, query []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []domain.ScoredChunk
	for _, chunks := range s.owners[ownerID] {
		for _, c := range chunks {
			sim, err := vector.Similarity(c.Embedding, query)
			if err != nil {
				return nil, domain.AsStoreError("similarity search", err)
			}
			scored = append(scored, domain.ScoredChunk{
				SourceID:   c.SourceID,
				Index:      c.Index,
				Content:    c.Content,
				Similarity: sim,
			})
		}
	}

	return vector.Rank(scored, minSimilarity, limit), nil
}

func (s *MemoryStore) Count(ctx context.Context, ownerID string) (int, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return 0, domain.AsStoreError("count", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, chunks := range s.owners[ownerID] {
		n += len(chunks)
	}
	return n, nil
}

func (s *MemoryStore) Owners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.owners))
	for owner, sources := range s.owners {
		if len(sources) > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *MemoryStore) GetSchemaInfo(ctx context.Context) (domain.SchemaInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema, nil
}

func (s *MemoryStore) SetSchemaInfo(ctx context.Context, info domain.SchemaInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = info
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = make(map[string]map[string][]domain.EmbeddedChunk)
	s.dimension = 0
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) ownerSources(ownerID string) map[string][]domain.EmbeddedChunk {
	sources, ok := s.owners[ownerID]
	if !ok {
		sources = make(map[string][]domain.EmbeddedChunk)
		s.owners[ownerID] = sources
	}
	return sources
}

// checkDimension returns the store dimension after accepting embedding.
// A zero dimension means nothing has been stored yet.
func checkDimension(dimension int, embedding []float32) (int, error) {
	if len(embedding) == 0 {
		return dimension, fmt.Errorf("%w: empty embedding", domain.ErrDimensionMismatch)
	}
	if dimension == 0 {
		return len(embedding), nil
	}
	if len(embedding) != dimension {
		return dimension, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dimension, len(embedding))
	}
	return dimension, nil
}

func checkScope(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ownerID == "" {
		return domain.ErrOwnerRequired
	}
	return nil
}

func copyChunk(c domain.EmbeddedChunk) domain.EmbeddedChunk {
	emb := make([]float32, len(c.Embedding))
	copy(emb, c.Embedding)
	c.Embedding = emb
	return c
}
