package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/config"
)

// fakeOllama serves the /api/tags endpoint with a fixed model list.
func fakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[`))
		for i, m := range models {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = w.Write([]byte(`{"name":"` + m + `"}`))
		}
		_, _ = w.Write([]byte(`]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCheckEmbedder_StaticProvider(t *testing.T) {
	c := New()
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 1)
	assert.Equal(t, StatusPass, results[0].Status)
}

func TestCheckEmbedder_OpenAIWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := New()
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "openai"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 1)
	assert.Equal(t, StatusWarn, results[0].Status)
	assert.False(t, results[0].IsCritical())
}

func TestCheckEmbedder_OpenAIWithKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	c := New()
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "openai"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 1)
	assert.Equal(t, StatusPass, results[0].Status)
}

func TestCheckEmbedder_OllamaRunningWithModel(t *testing.T) {
	ts := fakeOllama(t, "nomic-embed-text:latest")
	c := New(WithOllamaManager(NewOllamaManagerWithHost(ts.URL)))
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 2)
	assert.Equal(t, StatusPass, results[0].Status, "reachability")
	assert.Equal(t, StatusPass, results[1].Status, "model availability")
}

func TestCheckEmbedder_OllamaMissingModelWarns(t *testing.T) {
	ts := fakeOllama(t, "llama3:8b")
	c := New(WithOllamaManager(NewOllamaManagerWithHost(ts.URL)))
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.Model = "nomic-embed-text"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 2)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, StatusWarn, results[1].Status)
}

func TestCheckEmbedder_OllamaUnreachableWarns(t *testing.T) {
	ts := fakeOllama(t)
	ts.Close() // reachability probe now gets connection refused

	mgr := NewOllamaManagerWithHost(ts.URL)
	mgr.lookPath = func(string) (string, error) { return "", assert.AnError }
	mgr.fileExists = func(string) bool { return false }

	c := New(WithOllamaManager(mgr))
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "ollama"

	results := c.CheckEmbedder(context.Background(), cfg)

	require.Len(t, results, 1)
	assert.Equal(t, StatusWarn, results[0].Status)
	assert.False(t, results[0].IsCritical())
}
