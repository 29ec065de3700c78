// Package documents tracks ingested document metadata.
package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("documents: not found")

// Status tracks a document through its ingest lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Document is the metadata record for one ingested file.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	ChunkCount  int       `json:"chunk_count"`
	ContentHash string    `json:"content_hash"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is an in-memory document registry with JSON file persistence.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Document
	path string
}

// NewStore creates a registry. path may be empty to disable
// persistence.
func NewStore(path string) *Store {
	return &Store{docs: make(map[string]Document), path: path}
}

// Add registers a document record, replacing any prior record with the
// same id.
func (s *Store) Add(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

// Get returns the document for id.
func (s *Store) Get(id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// List returns all documents ordered by creation time, newest first.
func (s *Store) List() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove deletes the record for id.
func (s *Store) Remove(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	return doc, nil
}

// SetStatus updates a document's lifecycle status and chunk count.
func (s *Store) SetStatus(id string, status Status, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Status = status
	doc.ChunkCount = chunkCount
	s.docs[id] = doc
	return nil
}

// FindByHash returns the ready document with the given content hash,
// used for duplicate upload detection.
func (s *Store) FindByHash(hash string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.ContentHash == hash && doc.Status == StatusReady {
			return doc, true
		}
	}
	return Document{}, false
}

// Count returns the number of registered documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Save writes the registry to its metadata file via temp-and-rename.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	records := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		records = append(records, doc)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write document metadata: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace document metadata: %w", err)
	}
	return nil
}

// Load reads the metadata file if present. Missing files are fine.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read document metadata: %w", err)
	}

	var records []Document
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse document metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range records {
		s.docs[doc.ID] = doc
	}
	return nil
}
