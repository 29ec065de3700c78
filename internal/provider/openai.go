package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model is the default when a request does not name one.
	Model string
}

// OpenAIAdapter streams chat completions from the OpenAI API or any
// compatible endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates the adapter. A custom BaseURL points it at
// an OpenAI-compatible server.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider: openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

func (a *OpenAIAdapter) StreamGenerate(ctx context.Context, prompt Prompt, model string, opts Options) (<-chan Token, error) {
	if model == "" {
		model = a.model
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	ch := make(chan Token, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case ch <- Token{Err: classifyOpenAIError(err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			content := resp.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case ch <- Token{Content: content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, "openai request timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return NewError(KindRateLimited, "openai rate limit exceeded", err)
		case http.StatusNotFound:
			return NewError(KindInvalidModel, "openai model not found", err)
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return NewError(KindUnavailable, "openai service unavailable", err)
		}
		if strings.Contains(apiErr.Message, "model") && apiErr.HTTPStatusCode == http.StatusBadRequest {
			return NewError(KindInvalidModel, apiErr.Message, err)
		}
		return NewError(KindUnknown, apiErr.Message, err)
	}

	return NewError(KindUnavailable, fmt.Sprintf("openai request failed: %v", err), err)
}
