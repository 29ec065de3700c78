package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	// Extensions lists the file extensions this extractor handles,
	// without the leading dot.
	Extensions() []string
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// PlainTextExtractor handles text files directly.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extensions() []string { return []string{"txt", "md"} }

func (PlainTextExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: not valid utf-8 text", filename)
	}
	return string(data), nil
}

// SidecarExtractor delegates binary formats (pdf, docx) to an HTTP
// extraction sidecar that accepts the raw file and returns plain text.
type SidecarExtractor struct {
	baseURL string
	exts    []string
	client  *http.Client
}

// NewSidecarExtractor points at the sidecar service handling exts.
func NewSidecarExtractor(baseURL string, exts []string) *SidecarExtractor {
	return &SidecarExtractor{
		baseURL: baseURL,
		exts:    exts,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *SidecarExtractor) Extensions() []string { return e.exts }

func (e *SidecarExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filename)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call extraction sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("extraction sidecar returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sidecar response: %w", err)
	}
	return string(text), nil
}
