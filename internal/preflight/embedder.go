package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/embed"
)

// CheckEmbedder validates the configured embedding provider. All
// provider checks are non-critical: without an embedder the engine
// serves keyword-only search.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) []CheckResult {
	switch cfg.Embeddings.Provider {
	case embed.ProviderStatic:
		return []CheckResult{{
			Name:    "embedder",
			Status:  StatusPass,
			Message: "static embedder, no external provider required",
		}}
	case embed.ProviderOpenAI:
		return []CheckResult{c.checkOpenAIKey()}
	default: // ollama or auto
		return c.checkOllama(ctx, cfg)
	}
}

func (c *Checker) checkOpenAIKey() CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		result.Status = StatusWarn
		result.Message = "OPENAI_API_KEY is not set"
		result.Details = "Export the key or switch embeddings.provider to ollama or static"
		return result
	}
	result.Status = StatusPass
	result.Message = "OpenAI API key configured"
	return result
}

func (c *Checker) checkOllama(ctx context.Context, cfg *config.Config) []CheckResult {
	mgr := c.ollama
	if mgr == nil {
		mgr = NewOllamaManagerWithHost(cfg.Embeddings.OllamaHost)
	}

	model := cfg.Embeddings.Model
	if model == "" {
		model = embed.DefaultOllamaModel
	}

	reach := CheckResult{
		Name:     "ollama",
		Required: false,
	}

	running, err := mgr.IsRunning(ctx)
	if err != nil || !running {
		installed, _, _ := mgr.IsInstalled()
		reach.Status = StatusWarn
		if installed {
			reach.Message = "Ollama is installed but not running"
			reach.Details = "Start it with 'ollama serve' or let 'kbengine serve' start it"
		} else {
			reach.Message = fmt.Sprintf("Ollama is not reachable at %s", mgr.Host())
			reach.Details = "Searches fall back to keyword-only until a provider is available"
		}
		return []CheckResult{reach}
	}

	reach.Status = StatusPass
	reach.Message = fmt.Sprintf("reachable at %s", mgr.Host())

	modelCheck := CheckResult{
		Name:     "embedding_model",
		Required: false,
	}
	hasModel, err := mgr.HasModel(ctx, model)
	switch {
	case err != nil:
		modelCheck.Status = StatusWarn
		modelCheck.Message = fmt.Sprintf("cannot list models: %v", err)
	case hasModel:
		modelCheck.Status = StatusPass
		modelCheck.Message = fmt.Sprintf("%s available", model)
	default:
		modelCheck.Status = StatusWarn
		modelCheck.Message = fmt.Sprintf("%s not pulled (will pull on first index)", model)
		modelCheck.Details = fmt.Sprintf("Run 'ollama pull %s' to fetch it ahead of time", model)
	}

	return []CheckResult{reach, modelCheck}
}
