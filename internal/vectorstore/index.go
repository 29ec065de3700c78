// Package vectorstore provides the in-memory vector index over chunk
// embeddings, with gob persistence as an opaque blob.
//
// The index performs exact brute-force similarity search. Results come
// back sorted by descending score with ties broken by chunk insertion
// order, which keeps retrieval deterministic across identical corpora.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Sentinel errors for index operations.
var (
	// ErrDimensionMismatch indicates a vector whose dimension does not
	// match the index. This is a configuration error, not a per-call one.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyEmbedding indicates a nil or empty embedding.
	ErrEmptyEmbedding = errors.New("empty embedding")
)

// Metric is the similarity metric used by an index. It is fixed at
// construction.
type Metric string

const (
	// MetricCosine is cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricDot is inner product over normalized vectors.
	MetricDot Metric = "dot"
)

// Chunk is the unit of retrieval: a bounded slice of a document's text
// with its pre-computed embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Position   int
	Embedding  []float32
}

// Hit is one search result.
type Hit struct {
	Chunk Chunk
	Score float32
}

// Index is an exact-similarity in-memory vector index.
//
// Reads are concurrent; mutations (Add, RemoveDocument, load) take the
// write lock so a search never observes a partially-updated index.
type Index struct {
	mu     sync.RWMutex
	metric Metric
	dim    int
	chunks []Chunk

	metrics *Metrics
}

// NewIndex creates an index with a fixed dimension and metric.
func NewIndex(dim int, metric Metric) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}
	switch metric {
	case MetricCosine, MetricDot:
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, metric)
	}
	return &Index{metric: metric, dim: dim, metrics: NewMetrics()}, nil
}

// Dimension returns the fixed embedding dimension.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Add appends a chunk to the index. Insertion order is preserved and
// used for tie-breaking in Search.
func (ix *Index) Add(chunk Chunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %s", ErrEmptyEmbedding, chunk.ID)
	}
	if len(chunk.Embedding) != ix.dim {
		return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
			ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = append(ix.chunks, chunk)
	ix.metrics.RecordSize(context.Background(), 1)
	return nil
}

// RemoveDocument removes every chunk owned by documentID and reports
// how many were removed. Removing an absent document is a no-op.
func (ix *Index) RemoveDocument(documentID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	kept := ix.chunks[:0]
	removed := 0
	for _, c := range ix.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	// Clear the tail so removed chunks do not pin their embeddings.
	for i := len(kept); i < len(ix.chunks); i++ {
		ix.chunks[i] = Chunk{}
	}
	ix.chunks = kept
	if removed > 0 {
		ix.metrics.RecordSize(context.Background(), -removed)
	}
	return removed
}

// Search returns up to k hits sorted by descending score. Ties keep
// chunk insertion order. An empty index returns no hits.
func (ix *Index) Search(ctx context.Context, queryEmbedding []float32, k int) ([]Hit, error) {
	defer ix.metrics.TimeSearch(ctx)()

	if len(queryEmbedding) != ix.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(queryEmbedding), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := make([]Hit, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		var score float32
		switch ix.metric {
		case MetricDot:
			score = dot(queryEmbedding, c.Embedding)
		default:
			score = cosineSimilarity(queryEmbedding, c.Embedding)
		}
		hits = append(hits, Hit{Chunk: c, Score: score})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of chunks currently indexed.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// DocumentChunkCount returns the number of chunks owned by documentID.
func (ix *Index) DocumentChunkCount(documentID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, c := range ix.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n
}

// cosineSimilarity computes the cosine similarity between two vectors of
// equal length. Zero vectors score zero.
func cosineSimilarity(a, b []float32) float32 {
	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// dot computes the inner product of two vectors of equal length.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
