package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/manthysbr/aule-agent/internal/adapters/llm"
	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// Build creates the text-generation provider from app configuration.
// It hides local/remote provider selection from callers.
func Build(config *domain.AppConfig) (domain.StreamingLLMProvider, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	cfg := config.Providers.LLM

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "local":
		baseURL := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
		if baseURL == "" {
			baseURL = strings.TrimSpace(cfg.LocalURL)
		}
		return llm.NewOllamaProvider(normalizeOllamaBaseURL(baseURL), strings.TrimSpace(cfg.DefaultModel), cfg.Timeout), nil
	case "remote":
		if strings.TrimSpace(cfg.RemoteURL) == "" {
			return nil, fmt.Errorf("llm remote_url is required when mode=remote")
		}
		return llm.NewOpenAIProvider(
			strings.TrimSpace(cfg.RemoteURL),
			strings.TrimSpace(cfg.APIKey),
			strings.TrimSpace(cfg.DefaultModel),
			cfg.Timeout,
		), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider mode: %s", cfg.Mode)
	}
}

func normalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return strings.TrimSuffix(trimmed, "/v1")
	}
	return trimmed
}
