package embedding

import (
	"fmt"
	"os"
	"time"

	"ragpipe/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	switch cfg.Provider {
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
		}
		return NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     apiKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimension:  cfg.Dimension,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
			Timeout:    timeout,
		})
	case "ollama":
		return NewOllamaEmbedder(OllamaOptions{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Workers:   cfg.Concurrency,
			Timeout:   timeout,
		}), nil
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, &domain.ConfigurationError{
			Field:  "embedding.provider",
			Reason: fmt.Sprintf("unknown provider %q", cfg.Provider),
		}
	}
}
