package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p domain.StreamingLLMProvider) ([]string, error) {
	t.Helper()
	var out []string
	for fragment, err := range p.StreamText(context.Background(), "prompt", "system") {
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
	return out, nil
}

func TestOllamaProvider_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		assert.Equal(t, "be brief", req.System)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hi there", Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", time.Second)
	out, err := p.GenerateText(context.Background(), "hello", "be brief")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestOllamaProvider_GenerateTextStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m", time.Second).GenerateText(context.Background(), "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestOllamaProvider_StreamText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		enc := json.NewEncoder(w)
		for _, tok := range []string{`{"content": "`, "Hel", `lo"}`} {
			_ = enc.Encode(generateResponse{Response: tok})
		}
		_ = enc.Encode(generateResponse{Done: true})
	}))
	defer srv.Close()

	fragments, err := collect(t, NewOllamaProvider(srv.URL, "m", time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"content": "`, "Hel", `lo"}`, domain.StreamSentinel}, fragments)
}

func TestOllamaProvider_StreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "partial"})
	}))
	defer srv.Close()

	fragments, err := collect(t, NewOllamaProvider(srv.URL, "m", time.Second))
	require.Error(t, err)
	assert.Equal(t, []string{"partial"}, fragments)
}

func TestOpenAIProvider_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"answer"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/", "secret", "gpt-test", time.Second)
	out, err := p.GenerateText(context.Background(), "question", "sys")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestOpenAIProvider_GenerateTextNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(srv.URL, "", "", time.Second).GenerateText(context.Background(), "q", "")
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAIProvider_StreamText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	fragments, err := collect(t, NewOpenAIProvider(srv.URL, "", "m", time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", domain.StreamSentinel}, fragments)
	assert.Equal(t, "Hello", strings.Join(fragments[:2], ""))
}

func TestOpenAIProvider_StreamWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
	}))
	defer srv.Close()

	fragments, err := collect(t, NewOpenAIProvider(srv.URL, "", "m", time.Second))
	require.Error(t, err)
	assert.Equal(t, []string{"x"}, fragments)
}
