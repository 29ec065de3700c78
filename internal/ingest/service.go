// Package ingest validates uploads, extracts text, chunks it, embeds
// the chunks, and registers them with the vector index.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/documents"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	ErrUnsupportedType = errors.New("ingest: unsupported file type")
	ErrFileTooLarge    = errors.New("ingest: file exceeds size limit")
	ErrEmptyFile       = errors.New("ingest: empty file")
	ErrNoText          = errors.New("ingest: no extractable text")
)

// Config tunes the ingest pipeline.
type Config struct {
	MaxFileSize  int64
	ChunkSize    int
	ChunkOverlap int
}

// Saver persists index state after mutations. Optional.
type Saver interface {
	SaveNow() error
}

// Service runs the document ingest pipeline.
type Service struct {
	docs       *documents.Store
	index      *vectorstore.Index
	embedder   embeddings.Embedder
	extractors map[string]Extractor
	splitter   textsplitter.RecursiveCharacter
	saver      Saver
	cfg        Config
	logger     *logging.Logger
}

// NewService wires the pipeline. saver may be nil.
func NewService(
	docs *documents.Store,
	index *vectorstore.Index,
	embedder embeddings.Embedder,
	extractors []Extractor,
	saver Saver,
	cfg Config,
	logger *logging.Logger,
) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 200
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	byExt := make(map[string]Extractor)
	for _, ex := range extractors {
		for _, ext := range ex.Extensions() {
			byExt[strings.ToLower(ext)] = ex
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	return &Service{
		docs:       docs,
		index:      index,
		embedder:   embedder,
		extractors: byExt,
		splitter:   splitter,
		saver:      saver,
		cfg:        cfg,
		logger:     logger,
	}
}

// SupportedExtensions lists the extensions the service accepts.
func (s *Service) SupportedExtensions() []string {
	exts := make([]string, 0, len(s.extractors))
	for ext := range s.extractors {
		exts = append(exts, ext)
	}
	return exts
}

// Ingest runs the full pipeline for one uploaded file. The returned
// document is in the ready state on success. A duplicate upload (same
// content hash as a ready document) returns the existing record.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (documents.Document, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	extractor, ok := s.extractors[ext]
	if !ok {
		return documents.Document{}, fmt.Errorf("%w: .%s", ErrUnsupportedType, ext)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return documents.Document{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, len(data), s.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return documents.Document{}, ErrEmptyFile
	}

	hash := contentHash(data)
	if existing, ok := s.docs.FindByHash(hash); ok {
		s.logger.Info(ctx, "duplicate upload, reusing document",
			zap.String("document_id", existing.ID),
			zap.String("filename", filename))
		return existing, nil
	}

	doc := documents.Document{
		ID:          newDocumentID(hash),
		Filename:    filename,
		FileType:    ext,
		FileSize:    int64(len(data)),
		ContentHash: hash,
		Status:      documents.StatusProcessing,
		CreatedAt:   time.Now(),
	}
	s.docs.Add(doc)

	chunkCount, err := s.process(ctx, doc, extractor, data)
	if err != nil {
		if serr := s.docs.SetStatus(doc.ID, documents.StatusFailed, 0); serr != nil {
			s.logger.Error(ctx, "failed to mark document failed", zap.Error(serr))
		}
		return documents.Document{}, err
	}

	if err := s.docs.SetStatus(doc.ID, documents.StatusReady, chunkCount); err != nil {
		return documents.Document{}, err
	}
	s.persist(ctx)

	s.logger.Info(ctx, "document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", chunkCount))

	doc.Status = documents.StatusReady
	doc.ChunkCount = chunkCount
	return doc, nil
}

func (s *Service) process(ctx context.Context, doc documents.Document, extractor Extractor, data []byte) (int, error) {
	text, err := extractor.Extract(ctx, doc.Filename, data)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoText
	}

	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("split text: %w", err)
	}
	if len(chunks) == 0 {
		return 0, ErrNoText
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	for i, chunk := range chunks {
		err := s.index.Add(vectorstore.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%04d", doc.ID, i),
			DocumentID: doc.ID,
			Text:       chunk,
			Position:   i,
			Embedding:  vectors[i],
		})
		if err != nil {
			// Roll back partially indexed chunks.
			s.index.RemoveDocument(doc.ID)
			return 0, fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	return len(chunks), nil
}

// Delete removes a document's metadata and all its indexed chunks.
func (s *Service) Delete(ctx context.Context, id string) (documents.Document, error) {
	doc, err := s.docs.Remove(id)
	if err != nil {
		return documents.Document{}, err
	}

	removed := s.index.RemoveDocument(id)
	s.persist(ctx)

	s.logger.Info(ctx, "document deleted",
		zap.String("document_id", id),
		zap.Int("chunks_removed", removed))
	return doc, nil
}

func (s *Service) persist(ctx context.Context) {
	if err := s.docs.Save(); err != nil {
		s.logger.Error(ctx, "failed to save document metadata", zap.Error(err))
	}
	if s.saver != nil {
		if err := s.saver.SaveNow(); err != nil {
			s.logger.Error(ctx, "failed to save vector index", zap.Error(err))
		}
	}
}

// contentHash returns the hex sha256 of the file bytes.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newDocumentID builds a stable-prefix, random-suffix id like
// doc_a1b2c3d4_9f8e7d6c. The content prefix keeps ids recognizable in
// logs; the random suffix keeps re-uploads of changed files distinct.
func newDocumentID(hash string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("doc_%s_%s", hash[:8], suffix)
}
