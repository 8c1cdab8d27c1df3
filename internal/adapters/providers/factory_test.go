package providers

import (
	"testing"

	"github.com/manthysbr/aule-agent/internal/adapters/llm"
	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Local(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	cfg := domain.DefaultConfig()

	p, err := Build(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaProvider{}, p)
}

func TestBuild_RemoteRequiresURL(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Providers.LLM.Mode = "remote"

	_, err := Build(cfg)
	assert.ErrorContains(t, err, "remote_url")

	cfg.Providers.LLM.RemoteURL = "https://api.example.com/v1"
	p, err := Build(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIProvider{}, p)
}

func TestBuild_UnknownMode(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Providers.LLM.Mode = "carrier-pigeon"

	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestNormalizeOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL("http://localhost:11434/v1/"))
	assert.Equal(t, "http://ollama:11434", normalizeOllamaBaseURL(" http://ollama:11434 "))
}
