package llm

import (
	"context"
	"fmt"

	"ragchat/internal/config"
)

// LLM is the common interface every chat model client implements.
type LLM interface {
	// Generate produces a completion for a fully assembled prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// New creates an LLM client for the configured provider.
func New(cfg config.ModelConfig) (LLM, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "google":
		return NewGemini(context.Background(), cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
