package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/vectorstore"

// Metrics holds vector index instruments.
type Metrics struct {
	searchesTotal metric.Int64Counter
	searchDur     metric.Float64Histogram
	indexSize     metric.Int64UpDownCounter
}

// NewMetrics creates index metrics on the global meter provider.
// Instrument creation failures degrade to nil instruments.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.searchesTotal, _ = meter.Int64Counter(
		"ragd.index.searches_total",
		metric.WithDescription("Total similarity searches executed against the vector index."),
		metric.WithUnit("{search}"),
	)
	m.searchDur, _ = meter.Float64Histogram(
		"ragd.index.search_duration_seconds",
		metric.WithDescription("Vector index search duration in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	m.indexSize, _ = meter.Int64UpDownCounter(
		"ragd.index.chunks",
		metric.WithDescription("Number of chunks currently held in the vector index."),
		metric.WithUnit("{chunk}"),
	)
	return m
}

// TimeSearch records one search and returns a func to observe duration.
func (m *Metrics) TimeSearch(ctx context.Context) func() {
	start := time.Now()
	if m.searchesTotal != nil {
		m.searchesTotal.Add(ctx, 1)
	}
	return func() {
		if m.searchDur != nil {
			m.searchDur.Record(ctx, time.Since(start).Seconds())
		}
	}
}

// RecordSize adjusts the live chunk gauge by delta.
func (m *Metrics) RecordSize(ctx context.Context, delta int) {
	if m.indexSize != nil {
		m.indexSize.Add(ctx, int64(delta))
	}
}
