package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// indexBlob is the on-disk representation of an index. The format is an
// opaque gob blob; callers only see Save/Load.
type indexBlob struct {
	Metric Metric
	Dim    int
	Chunks []Chunk
}

// Save writes the index contents to w as an opaque blob.
func (ix *Index) Save(w io.Writer) error {
	ix.mu.RLock()
	blob := indexBlob{
		Metric: ix.metric,
		Dim:    ix.dim,
		Chunks: make([]Chunk, len(ix.chunks)),
	}
	copy(blob.Chunks, ix.chunks)
	ix.mu.RUnlock()

	if err := gob.NewEncoder(w).Encode(blob); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return nil
}

// Load replaces the index contents from a blob previously written by
// Save. The blob's dimension and metric must match the index.
func (ix *Index) Load(r io.Reader) error {
	var blob indexBlob
	if err := gob.NewDecoder(r).Decode(&blob); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}
	if blob.Dim != ix.dim {
		return fmt.Errorf("%w: stored index has dimension %d, index expects %d",
			ErrDimensionMismatch, blob.Dim, ix.dim)
	}
	if blob.Metric != ix.metric {
		return fmt.Errorf("%w: stored index uses metric %q, index expects %q",
			ErrInvalidConfig, blob.Metric, ix.metric)
	}

	ix.mu.Lock()
	delta := len(blob.Chunks) - len(ix.chunks)
	ix.chunks = blob.Chunks
	ix.metrics.RecordSize(context.Background(), delta)
	ix.mu.Unlock()
	return nil
}

// Persister saves an index to disk at startup, on a cadence, and on
// demand. It lives outside the index's concurrency discipline; the
// index's own lock guards the snapshot taken by Save.
type Persister struct {
	index    *Index
	path     string
	interval time.Duration
	logger   *logging.Logger
}

// NewPersister creates a persister writing to path every interval.
func NewPersister(index *Index, path string, interval time.Duration, logger *logging.Logger) *Persister {
	return &Persister{
		index:    index,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// LoadIfExists loads the persisted blob when present. A missing file is
// not an error; a corrupt one is.
func (p *Persister) LoadIfExists() error {
	f, err := os.Open(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	if err := p.index.Load(f); err != nil {
		return fmt.Errorf("loading index from %s: %w", p.path, err)
	}
	p.logger.Info(context.Background(), "vector index loaded",
		zap.String("path", p.path),
		zap.Int("chunks", p.index.Count()))
	return nil
}

// SaveNow writes the index to disk, via a temp file and rename so a
// crash mid-write never leaves a truncated blob behind.
func (p *Persister) SaveNow() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".index-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if err := p.index.Save(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing index file: %w", err)
	}
	return nil
}

// Run saves on the configured cadence until ctx is cancelled, then takes
// a final snapshot.
func (p *Persister) Run(ctx context.Context) {
	if p.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.SaveNow(); err != nil {
				p.logger.Error(ctx, "periodic index save failed", zap.Error(err))
			}
		case <-ctx.Done():
			if err := p.SaveNow(); err != nil {
				p.logger.Error(context.Background(), "final index save failed", zap.Error(err))
			}
			return
		}
	}
}
