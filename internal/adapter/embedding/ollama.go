package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

const (
	defaultOllamaURL     = "http://localhost:11434"
	defaultOllamaModel   = "nomic-embed-text"
	defaultOllamaWorkers = 4
)

// OllamaEmbedder uses the native Ollama API, which embeds one prompt per
// request. Batches fan out over a bounded number of concurrent requests.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	workers   int
	client    *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

type OllamaOptions struct {
	BaseURL   string
	Model     string
	Dimension int
	Workers   int
	Timeout   time.Duration
}

func NewOllamaEmbedder(opts OllamaOptions) *OllamaEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOllamaURL
	}
	if opts.Model == "" {
		opts.Model = defaultOllamaModel
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultOllamaWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}

	dimension := opts.Dimension
	if dimension == 0 {
		switch opts.Model {
		case "nomic-embed-text":
			dimension = 768
		case "mxbai-embed-large":
			dimension = 1024
		case "all-minilm":
			dimension = 384
		}
	}

	return &OllamaEmbedder{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		model:     opts.Model,
		dimension: dimension,
		workers:   opts.Workers,
		client:    &http.Client{Timeout: opts.Timeout},
	}
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, values []string) ([][]float32, error) {
	if len(values) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(values))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, value := range values {
		g.Go(func() error {
			emb, err := e.embed(gctx, value)
			if err != nil {
				return fmt.Errorf("value %d: %w", i, err)
			}
			embeddings[i] = emb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, domain.AsEmbeddingError("batch", err)
	}
	return embeddings, nil
}

func (e *OllamaEmbedder) EmbedOne(ctx context.Context, value string) ([]float32, error) {
	emb, err := e.embed(ctx, value)
	if err != nil {
		return nil, domain.AsEmbeddingError("query", err)
	}
	return emb, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, value string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Ollama API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("Ollama API error: %s", result.Error)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("Ollama returned an empty embedding for model %s", e.model)
	}

	return vector.FromFloat64(result.Embedding), nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
