// Package provider abstracts streaming text generation behind a common
// adapter interface so the chat pipeline stays backend-agnostic.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when a request names a provider that
// was never registered.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// ErrorKind classifies a backend failure for API error mapping.
type ErrorKind string

const (
	KindUnavailable  ErrorKind = "unavailable"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInvalidModel ErrorKind = "invalid_model"
	KindTimeout      ErrorKind = "timeout"
	KindUnknown      ErrorKind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError wraps cause with a kind classification.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Token is one streamed generation fragment. A non-nil Err terminates
// the stream.
type Token struct {
	Content string
	Err     error
}

// Prompt is the generation input.
type Prompt struct {
	System string
	User   string
}

// Options tunes a single generation call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Adapter is a streaming generation backend. StreamGenerate returns
// before the first token; the channel is closed when the stream ends
// for any reason.
type Adapter interface {
	Name() string
	StreamGenerate(ctx context.Context, prompt Prompt, model string, opts Options) (<-chan Token, error)
}

// Registry holds the configured adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for name, or ErrUnknownProvider.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
