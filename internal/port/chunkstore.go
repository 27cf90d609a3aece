package port

import (
	"context"

	"ragpipe/internal/domain"
)

// ChunkStore persists embedded chunks and scans them by similarity.
// Every operation is scoped to a single owner.
type ChunkStore interface {
	// Insert appends one chunk to the owner's source.
	Insert(ctx context.Context, ownerID string, chunk domain.EmbeddedChunk) error

	// ReplaceSource atomically swaps all chunks of a source for the given ones.
	// Either every chunk is written or none is.
	ReplaceSource(ctx context.Context, ownerID, sourceID string, chunks []domain.EmbeddedChunk) error

	// SimilaritySearch returns the owner's chunks with similarity strictly
	// above minSimilarity, highest first, at most limit entries.
	SimilaritySearch(ctx context.Context, ownerID string, query []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error)

	// Count returns the number of chunks stored for the owner.
	Count(ctx context.Context, ownerID string) (int, error)

	Close() error
}

// SchemaStore is implemented by stores that persist schema information.
type SchemaStore interface {
	GetSchemaInfo(ctx context.Context) (domain.SchemaInfo, error)

	SetSchemaInfo(ctx context.Context, info domain.SchemaInfo) error

	// Clear removes every chunk of every owner.
	Clear(ctx context.Context) error
}

// OwnerLister is implemented by stores that can enumerate their owners.
type OwnerLister interface {
	Owners(ctx context.Context) ([]string, error)
}
