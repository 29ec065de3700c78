// Package chat orchestrates the conversational pipeline: query
// augmentation, retrieval, the confidence guard, streaming generation,
// and memory commit.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/memory"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
)

// ErrValidation marks a malformed request. The server maps it to a 400.
var ErrValidation = errors.New("chat: invalid request")

// Request is one chat turn from a client. An absent score_threshold
// falls back to the configured default; an explicit value is honored
// as given, including 0.
type Request struct {
	SessionID      string   `json:"session_id"`
	Message        string   `json:"message"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
	ScoreThreshold *float32 `json:"score_threshold,omitempty"`
}

// EventType discriminates stream events.
type EventType string

const (
	EventToken   EventType = "token"
	EventSources EventType = "sources"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one frame of a streamed chat response.
type Event struct {
	Type       EventType       `json:"type"`
	Content    string          `json:"content,omitempty"`
	Sources    []memory.Source `json:"sources,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Err        string          `json:"error,omitempty"`
}

// MarshalJSON keeps the sources field present on sources frames even
// when no source survived, so clients always read an array there.
// Other frame types omit their empty fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventSources {
		sources := e.Sources
		if sources == nil {
			sources = []memory.Source{}
		}
		return json.Marshal(struct {
			Type    EventType       `json:"type"`
			Sources []memory.Source `json:"sources"`
		}{e.Type, sources})
	}

	type plain Event
	return json.Marshal(plain(e))
}

// Response is the buffered result of a synchronous chat call.
type Response struct {
	Answer     string          `json:"answer"`
	Sources    []memory.Source `json:"sources"`
	Confidence float64         `json:"confidence"`
}

// Config tunes the orchestrator.
type Config struct {
	// DefaultProvider is used when a request does not name one.
	DefaultProvider string
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	memory    *memory.Store
	retriever *retrieval.Retriever
	builder   *retrieval.ContextBuilder
	providers *provider.Registry
	cfg       Config
	logger    *logging.Logger
}

func NewOrchestrator(
	mem *memory.Store,
	retriever *retrieval.Retriever,
	builder *retrieval.ContextBuilder,
	providers *provider.Registry,
	cfg Config,
	logger *logging.Logger,
) *Orchestrator {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "openai"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		memory:    mem,
		retriever: retriever,
		builder:   builder,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
	}
}

func (o *Orchestrator) validate(req *Request) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if req.Provider == "" {
		req.Provider = o.cfg.DefaultProvider
	}
	return nil
}

// augmentQuery folds recent conversation into the retrieval query so
// follow-up questions resolve their referents.
func (o *Orchestrator) augmentQuery(sessionID, message string) string {
	recent := o.memory.RecentContext(sessionID)
	if recent == "" {
		return message
	}
	return fmt.Sprintf("Context: %s\n\nQuestion: %s", recent, message)
}

// Stream runs the pipeline and emits events on the returned channel.
// Request validation and provider lookup fail synchronously; everything
// after that is reported in-band. The channel is closed when the
// exchange ends for any reason.
func (o *Orchestrator) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := o.validate(&req); err != nil {
		return nil, err
	}
	adapter, err := o.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		o.run(ctx, req, adapter, events)
	}()
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, adapter provider.Adapter, events chan<- Event) {
	ctx = logging.WithSessionID(ctx, req.SessionID)
	start := time.Now()

	query := o.augmentQuery(req.SessionID, req.Message)
	result, err := o.retriever.Retrieve(ctx, query, retrieval.Options{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		o.logger.Error(ctx, "retrieval failed", zap.Error(err))
		o.emit(ctx, events, Event{Type: EventError, Err: "retrieval failed"})
		return
	}

	decision := retrieval.Evaluate(result)
	if !decision.Accept {
		o.refuse(ctx, req, events)
		return
	}

	history := o.memory.Window(req.SessionID)
	prompt := o.builder.Build(req.Message, history, result.Hits)
	sources := o.builder.Sources(result.Hits)

	tokens, err := adapter.StreamGenerate(ctx, provider.Prompt(prompt), req.Model, provider.Options{})
	if err != nil {
		o.logger.Error(ctx, "generation failed to start", zap.Error(err))
		o.emit(ctx, events, Event{Type: EventError, Err: err.Error()})
		return
	}

	var answer strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			o.logger.Error(ctx, "generation failed mid-stream", zap.Error(tok.Err))
			o.emit(ctx, events, Event{Type: EventError, Err: tok.Err.Error()})
			return
		}
		if !o.emit(ctx, events, Event{Type: EventToken, Content: tok.Content}) {
			return
		}
		answer.WriteString(tok.Content)
	}
	if ctx.Err() != nil {
		// Cancelled exchanges are discarded, not committed.
		return
	}

	o.emit(ctx, events, Event{Type: EventSources, Sources: sources})
	o.emit(ctx, events, Event{Type: EventDone, Confidence: &decision.Confidence})

	o.commit(req, answer.String(), sources, decision.Confidence)
	o.logger.Info(ctx, "chat exchange complete",
		zap.String("provider", req.Provider),
		zap.Int("sources", len(sources)),
		zap.Float64("confidence", decision.Confidence),
		zap.Duration("duration", time.Since(start)))
}

// refuse streams the refusal word by word and commits the exchange so
// the refusal stays part of the conversation record.
func (o *Orchestrator) refuse(ctx context.Context, req Request, events chan<- Event) {
	for _, word := range strings.Fields(retrieval.RefusalText) {
		if !o.emit(ctx, events, Event{Type: EventToken, Content: word + " "}) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	zero := 0.0
	o.emit(ctx, events, Event{Type: EventSources, Sources: []memory.Source{}})
	o.emit(ctx, events, Event{Type: EventDone, Confidence: &zero})

	o.commit(req, retrieval.RefusalText, nil, 0)
	o.logger.Info(ctx, "chat refused for lack of evidence")
}

func (o *Orchestrator) commit(req Request, answer string, sources []memory.Source, confidence float64) {
	now := time.Now()
	o.memory.AppendExchange(req.SessionID,
		memory.Turn{Role: memory.RoleUser, Content: req.Message, Timestamp: now},
		memory.Turn{
			Role:       memory.RoleAssistant,
			Content:    answer,
			Sources:    sources,
			Confidence: confidence,
			Timestamp:  now,
		})
}

func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ask runs the same pipeline synchronously and buffers the answer.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Response, error) {
	events, err := o.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp Response
	done := false
	for ev := range events {
		switch ev.Type {
		case EventToken:
			resp.Answer += ev.Content
		case EventSources:
			resp.Sources = ev.Sources
		case EventDone:
			if ev.Confidence != nil {
				resp.Confidence = *ev.Confidence
			}
			done = true
		case EventError:
			return nil, errors.New(ev.Err)
		}
	}
	if !done {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New("chat: stream ended without completion")
	}
	resp.Answer = strings.TrimRight(resp.Answer, " ")
	return &resp, nil
}
