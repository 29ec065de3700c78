package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/documents"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, s.err
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }

func newService(t *testing.T, embedder *stubEmbedder) (*ingest.Service, *documents.Store, *vectorstore.Index) {
	t.Helper()
	index, err := vectorstore.NewIndex(3, vectorstore.MetricCosine)
	require.NoError(t, err)
	docs := documents.NewStore("")
	svc := ingest.NewService(docs, index, embedder, []ingest.Extractor{ingest.PlainTextExtractor{}}, nil,
		ingest.Config{MaxFileSize: 1024, ChunkSize: 100, ChunkOverlap: 20}, nil)
	return svc, docs, index
}

func TestIngestPlainText(t *testing.T) {
	svc, docs, index := newService(t, &stubEmbedder{})

	content := strings.Repeat("Go services read configuration at startup. ", 10)
	doc, err := svc.Ingest(context.Background(), "guide.txt", []byte(content))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.ID, "doc_"))
	assert.Equal(t, documents.StatusReady, doc.Status)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Equal(t, doc.ChunkCount, index.DocumentChunkCount(doc.ID))

	stored, err := docs.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusReady, stored.Status)
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	svc, _, _ := newService(t, &stubEmbedder{})

	_, err := svc.Ingest(context.Background(), "image.png", []byte("data"))
	assert.ErrorIs(t, err, ingest.ErrUnsupportedType)
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	svc, _, _ := newService(t, &stubEmbedder{})

	_, err := svc.Ingest(context.Background(), "big.txt", make([]byte, 2048))
	assert.ErrorIs(t, err, ingest.ErrFileTooLarge)
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	svc, _, _ := newService(t, &stubEmbedder{})

	_, err := svc.Ingest(context.Background(), "empty.txt", nil)
	assert.ErrorIs(t, err, ingest.ErrEmptyFile)

	_, err = svc.Ingest(context.Background(), "blank.txt", []byte("   \n  "))
	assert.ErrorIs(t, err, ingest.ErrNoText)
}

func TestIngestEmbedFailureMarksFailed(t *testing.T) {
	boom := errors.New("embedding backend down")
	svc, docs, index := newService(t, &stubEmbedder{err: boom})

	_, err := svc.Ingest(context.Background(), "doc.txt", []byte("some real content here"))
	require.ErrorIs(t, err, boom)

	list := docs.List()
	require.Len(t, list, 1)
	assert.Equal(t, documents.StatusFailed, list[0].Status)
	assert.Equal(t, 0, index.Count())
}

func TestIngestDuplicateReturnsExisting(t *testing.T) {
	svc, docs, _ := newService(t, &stubEmbedder{})
	content := []byte("identical content for both uploads")

	first, err := svc.Ingest(context.Background(), "a.txt", content)
	require.NoError(t, err)

	second, err := svc.Ingest(context.Background(), "b.txt", content)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, docs.Count())
}

func TestDeleteRemovesMetadataAndChunks(t *testing.T) {
	svc, docs, index := newService(t, &stubEmbedder{})

	doc, err := svc.Ingest(context.Background(), "doc.txt", []byte("content that will be deleted shortly"))
	require.NoError(t, err)
	require.Greater(t, index.Count(), 0)

	removed, err := svc.Delete(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, removed.ID)
	assert.Equal(t, 0, index.Count())
	assert.Equal(t, 0, docs.Count())

	_, err = svc.Delete(context.Background(), doc.ID)
	assert.ErrorIs(t, err, documents.ErrNotFound)
}

func TestSidecarExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extract", r.URL.Path)
		require.Equal(t, "report.pdf", r.Header.Get("X-Filename"))
		fmt.Fprint(w, "extracted pdf text")
	}))
	defer srv.Close()

	ex := ingest.NewSidecarExtractor(srv.URL, []string{"pdf", "docx"})
	assert.Equal(t, []string{"pdf", "docx"}, ex.Extensions())

	text, err := ex.Extract(context.Background(), "report.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "extracted pdf text", text)
}

func TestSidecarExtractorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "corrupt file", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	ex := ingest.NewSidecarExtractor(srv.URL, []string{"pdf"})
	_, err := ex.Extract(context.Background(), "bad.pdf", []byte("junk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
