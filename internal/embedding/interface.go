package embedding

import (
	"context"
	"fmt"

	"ragchat/internal/config"
)

// Embedding is the gateway to the external embedding model. Implementations
// wrap provider errors in *models.EmbeddingError and never retry internally;
// callers decide retry policy. Vector dimensionality is fixed by the chosen
// model and must match the vector store's configured dimension.
type Embedding interface {
	// Embed generates the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for a batch of texts in one provider
	// call. The result preserves input order and length.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New creates the embedding client selected by the config.
func New(cfg config.ModelConfig) (Embedding, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIModel(cfg.APIKey, cfg.Model)
	case "google":
		return NewGoogleModel(cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaModel(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}
