// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search.
type Embedder interface {
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
}

// Config holds configuration for creating an embedder.
type Config struct {
	// Provider is the provider type: "openai" or "ollama".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL overrides the provider endpoint (required for ollama).
	BaseURL string
	// APIKey is the API key (openai only).
	APIKey string
	// Dimension overrides the model's detected dimension when non-zero.
	Dimension int
}

// New creates an embedder based on the configuration.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// l2Normalize normalizes a vector to unit length in place. Unit vectors
// make cosine and inner-product similarity interchangeable.
func l2Normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
