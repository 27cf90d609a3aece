package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedBatch embeds values in one logical call.
	// Returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, values []string) ([][]float32, error)

	// EmbedOne embeds a single value, typically a query.
	EmbedOne(ctx context.Context, value string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
