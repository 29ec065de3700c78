package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactorySelection(t *testing.T) {
	e, err := New(Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)

	e, err = New(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	_, err = New(Config{Provider: "mystery"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDimensionDetection(t *testing.T) {
	e, err := NewOpenAIEmbedder(Config{APIKey: "sk-test", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimension())

	e, err = NewOpenAIEmbedder(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimension())

	e, err = NewOpenAIEmbedder(Config{APIKey: "sk-test", Dimension: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, e.Dimension())

	o, err := NewOllamaEmbedder(Config{Model: "all-minilm"})
	require.NoError(t, err)
	assert.Equal(t, 384, o.Dimension())
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	zero := []float32{0, 0}
	l2Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestOllamaEmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "hello", req.Prompt)

		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{3, 4}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	v, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6, "embedding is normalized")
}

func TestOllamaEmbedQueryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestOllamaEmbedDocumentsEmptyInput(t *testing.T) {
	e, err := NewOllamaEmbedder(Config{})
	require.NoError(t, err)

	_, err = e.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = e.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
