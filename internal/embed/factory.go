package embed

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
	ProviderAuto   = "auto"
)

// FactoryConfig selects and configures an embedding provider.
type FactoryConfig struct {
	// Provider is one of "ollama", "openai", "static" or "auto".
	// "auto" tries Ollama and falls back to the static embedder.
	Provider string

	// Model overrides the provider's default model.
	Model string

	// Dimensions overrides dimension auto-detection (0 = auto).
	Dimensions int

	// BatchSize for batch requests (default: 32).
	BatchSize int

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string

	// OpenAIAPIKey authenticates against OpenAI. Empty falls back to
	// the OPENAI_API_KEY environment variable.
	OpenAIAPIKey string

	// CacheSize is the query-embedding LRU capacity (0 = default).
	CacheSize int
}

// NewEmbedder constructs the configured embedding provider, wrapped in
// an LRU cache. With provider "auto" it prefers Ollama and degrades to
// the static embedder when Ollama is unreachable.
func NewEmbedder(ctx context.Context, cfg FactoryConfig, logger *slog.Logger) (Embedder, error) {
	inner, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(ctx context.Context, cfg FactoryConfig, logger *slog.Logger) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(ctx, ollamaConfig(cfg))

	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})

	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderAuto, "":
		embedder, err := NewOllamaEmbedder(ctx, ollamaConfig(cfg))
		if err == nil {
			return embedder, nil
		}
		logger.Warn("ollama unavailable, using static embedder",
			slog.String("error", err.Error()))
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func ollamaConfig(cfg FactoryConfig) OllamaConfig {
	ollama := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		ollama.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		ollama.Model = cfg.Model
	}
	if cfg.Dimensions > 0 {
		ollama.Dimensions = cfg.Dimensions
	}
	if cfg.BatchSize > 0 {
		ollama.BatchSize = cfg.BatchSize
	}
	return ollama
}
