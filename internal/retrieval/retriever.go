// Package retrieval embeds queries, searches the vector index, and
// decides whether the results are strong enough to ground an answer.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// ErrEmptyQuery is returned when the query text is blank.
	ErrEmptyQuery = errors.New("retrieval: empty query")
)

// Options tunes a single retrieval call. A zero TopK and a nil
// ScoreThreshold fall back to the retriever defaults; an explicit
// threshold is used as given, including 0 (keep everything) and
// negative values, which are meaningful under cosine similarity.
type Options struct {
	TopK           int
	ScoreThreshold *float32
}

// Defaults holds the retriever-wide fallbacks for Options.
type Defaults struct {
	TopK           int
	ScoreThreshold float32
}

// Result holds the threshold-filtered hits for one query.
type Result struct {
	Hits     []vectorstore.Hit
	TopScore float32
}

// Retriever embeds a query and searches the index.
type Retriever struct {
	embedder embeddings.Embedder
	index    *vectorstore.Index
	defaults Defaults
	logger   *logging.Logger
}

// NewRetriever creates a retriever with default top-k and threshold.
func NewRetriever(embedder embeddings.Embedder, index *vectorstore.Index, defaults Defaults, logger *logging.Logger) *Retriever {
	if defaults.TopK <= 0 {
		defaults.TopK = 5
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		defaults: defaults,
		logger:   logger,
	}
}

// Retrieve embeds query, runs a similarity search, and drops hits whose
// score falls strictly below the threshold. Zero surviving hits is a
// valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if opts.TopK <= 0 {
		opts.TopK = r.defaults.TopK
	}
	threshold := r.defaults.ScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, embedding, opts.TopK)
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}

	filtered := hits[:0:0]
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		filtered = append(filtered, hit)
	}

	result := Result{Hits: filtered}
	if len(filtered) > 0 {
		result.TopScore = filtered[0].Score
	}

	r.logger.Debug(ctx, "retrieval complete",
		zap.Int("candidates", len(hits)),
		zap.Int("hits", len(filtered)),
		zap.Float32("top_score", result.TopScore),
		zap.Float32("threshold", threshold))

	return result, nil
}
