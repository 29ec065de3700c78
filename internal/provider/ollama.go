package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaAdapter streams completions from a local Ollama server over its
// NDJSON generate API.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaAdapter(cfg OllamaConfig) *OllamaAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 300 * time.Second},
	}
}

func (a *OllamaAdapter) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (a *OllamaAdapter) StreamGenerate(ctx context.Context, prompt Prompt, model string, opts Options) (<-chan Token, error) {
	if model == "" {
		model = a.model
	}

	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt.User,
		System: prompt.System,
		Stream: true,
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		reqBody.Options = map[string]interface{}{}
		if opts.Temperature > 0 {
			reqBody.Options["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			reqBody.Options["num_predict"] = opts.MaxTokens
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, NewError(KindUnavailable, "ollama is not reachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, NewError(KindInvalidModel, fmt.Sprintf("ollama model %q not found", model), nil)
		}
		return nil, NewError(KindUnavailable, fmt.Sprintf("ollama returned status %d", resp.StatusCode), nil)
	}

	ch := make(chan Token, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				select {
				case ch <- Token{Err: NewError(KindUnknown, chunk.Error, nil)}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Response != "" {
				select {
				case ch <- Token{Content: chunk.Response}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- Token{Err: NewError(KindUnavailable, "ollama stream interrupted", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}
