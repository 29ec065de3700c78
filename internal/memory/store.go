// Package memory provides per-session conversation history for
// multi-turn chat.
//
// Sessions are created lazily on first append, serialized per session
// id (one mutex per session, no cross-session blocking), and optionally
// evicted after an idle TTL.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a provenance record attached to an assistant turn and
// surfaced to callers.
type Source struct {
	Document       string `json:"document"`
	ChunkID        string `json:"chunk_id"`
	ContentPreview string `json:"content_preview,omitempty"`
}

// Turn is one user message or one assistant response within a session.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Sources    []Source  `json:"sources,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config holds session memory configuration.
type Config struct {
	// Window is the number of recent exchanges (user+assistant pairs)
	// used for query augmentation.
	Window int
	// MaxTurns caps the retained history per session; oldest turns are
	// dropped first. Zero means unbounded.
	MaxTurns int
	// IdleTTL evicts sessions idle for longer than this. Zero disables
	// eviction.
	IdleTTL time.Duration
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval time.Duration
}

type session struct {
	mu         sync.Mutex
	turns      []Turn
	lastActive time.Time
}

// Store holds conversation history keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	cfg      Config
	logger   *logging.Logger
}

// NewStore creates a session memory store.
func NewStore(cfg Config, logger *logging.Logger) *Store {
	if cfg.Window <= 0 {
		cfg.Window = 3
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		sessions: make(map[string]*session),
		cfg:      cfg,
		logger:   logger,
	}
}

// getOrCreate returns the session for id, creating it lazily.
func (s *Store) getOrCreate(id string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[id]; ok {
		return sess
	}
	sess = &session{lastActive: time.Now()}
	s.sessions[id] = sess
	return sess
}

// History returns a copy of the full history for a session. An unknown
// session yields an empty history, not an error, and is not created.
func (s *Store) History(id string) []Turn {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Window returns the last Window exchanges for augmentation.
func (s *Store) Window(id string) []Turn {
	history := s.History(id)
	limit := s.cfg.Window * 2
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// RecentContext condenses the augmentation window into a plain-text
// transcript, or "" for an empty session.
func (s *Store) RecentContext(id string) string {
	window := s.Window(id)
	if len(window) == 0 {
		return ""
	}

	parts := make([]string, 0, len(window))
	for _, turn := range window {
		label := "Human"
		if turn.Role == RoleAssistant {
			label = "Assistant"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, turn.Content))
	}
	return strings.Join(parts, "\n")
}

// AppendExchange commits one user turn and its assistant turn as a
// unit, preserving arrival order under concurrent requests on the same
// session id.
func (s *Store) AppendExchange(id string, user, assistant Turn) {
	sess := s.getOrCreate(id)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.turns = append(sess.turns, user, assistant)
	if s.cfg.MaxTurns > 0 && len(sess.turns) > s.cfg.MaxTurns {
		overflow := len(sess.turns) - s.cfg.MaxTurns
		sess.turns = append([]Turn(nil), sess.turns[overflow:]...)
	}
	sess.lastActive = time.Now()
}

// Clear removes a session. Returns whether it existed; clearing an
// unknown session is a no-op.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// ClearAll removes every session and returns how many were cleared.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*session)
	return n
}

// ListActive returns the ids of all live sessions.
func (s *Store) ListActive() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunSweeper evicts idle sessions until ctx is cancelled. It is a no-op
// when IdleTTL is zero.
func (s *Store) RunSweeper(ctx context.Context) {
	if s.cfg.IdleTTL <= 0 {
		return
	}
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.EvictIdleAt(time.Now()); n > 0 {
				s.logger.Info(ctx, "evicted idle sessions", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// EvictIdleAt removes sessions idle since before now-IdleTTL, using the
// supplied clock reading.
func (s *Store) EvictIdleAt(now time.Time) int {
	cutoff := now.Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastActive.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
