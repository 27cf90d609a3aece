package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

const defaultOpenAIBatch = 100

// OpenAIEmbedder talks to the OpenAI embeddings endpoint or any server that
// speaks the same protocol (set BaseURL).
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	// Only text-embedding-3 and later accept an explicit dimension.
	sendDimension bool
}

type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimension  int
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, &domain.ConfigurationError{Field: "embedding.api_key_env", Reason: "API key is empty"}
	}
	if opts.Model == "" {
		opts.Model = openai.EmbeddingModelTextEmbedding3Small
	}

	dimension := opts.Dimension
	if dimension == 0 {
		dimension = knownDimension(opts.Model)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultOpenAIBatch
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAIEmbedder{
		client:        openai.NewClient(clientOpts...),
		model:         opts.Model,
		dimension:     dimension,
		batchSize:     batchSize,
		sendDimension: opts.Dimension > 0 && strings.HasPrefix(opts.Model, "text-embedding-3"),
	}, nil
}

func knownDimension(model string) int {
	switch model {
	case openai.EmbeddingModelTextEmbedding3Large:
		return 3072
	case openai.EmbeddingModelTextEmbedding3Small, openai.EmbeddingModelTextEmbeddingAda002:
		return 1536
	case "jina-embeddings-v3":
		return 1024
	case "nomic-embed-text":
		return 768
	default:
		return 0
	}
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, values []string) ([][]float32, error) {
	if len(values) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(values))
	for start := 0; start < len(values); start += e.batchSize {
		end := start + e.batchSize
		if end > len(values) {
			end = len(values)
		}

		embeddings, err := e.embedBatch(ctx, values[start:end])
		if err != nil {
			return nil, domain.AsEmbeddingError("batch", err)
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, value string) ([]float32, error) {
	embeddings, err := e.embedBatch(ctx, []string{value})
	if err != nil {
		return nil, domain.AsEmbeddingError("query", err)
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, values []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: values},
		Model: e.model,
	}
	if e.sendDimension {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if len(resp.Data) != len(values) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(values), len(resp.Data))
	}

	embeddings := make([][]float32, len(values))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(values) || embeddings[data.Index] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", data.Index)
		}
		embeddings[data.Index] = vector.FromFloat64(data.Embedding)
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
