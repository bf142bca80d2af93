// Package chat owns the conversation session with the remote model and
// drives streaming exchanges over it.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/scholarmate/pkg/model"
)

// Session is an established conversation context with the remote model,
// bound at creation to a persona and toolset. It is never mutated.
type Session struct {
	ID        string
	CreatedAt time.Time

	chat model.Chat
}

// SessionManager holds at most one current Session.
type SessionManager struct {
	provider model.Provider
	cfg      model.ChatConfig

	mu      sync.RWMutex
	current *Session
	lastErr error
}

// NewSessionManager creates an unbound SessionManager. No remote call is made
// until Initialize or CurrentOrInitialize.
func NewSessionManager(provider model.Provider, cfg model.ChatConfig) *SessionManager {
	return &SessionManager{provider: provider, cfg: cfg}
}

// Initialize replaces the current session with a fresh one. The old session
// is dropped, along with whatever context the remote side held for it.
//
// Failures are not returned: the manager is left unbound and the error
// surfaces from the next CurrentOrInitialize.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.initializeLocked(ctx); err != nil {
		slog.Warn("Chat session initialization failed", "error", err)
	}
}

// CurrentOrInitialize returns the current session, creating one first if
// the manager is unbound. It returns an error wrapping ErrSessionUnavailable
// if no session can be created.
func (m *SessionManager) CurrentOrInitialize(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	s, err := m.initializeLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	return s, nil
}

// Current returns the current session, or nil when unbound.
func (m *SessionManager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// LastError returns the error of the most recent failed initialization,
// or nil if the latest attempt succeeded.
func (m *SessionManager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *SessionManager) initializeLocked(ctx context.Context) (*Session, error) {
	m.current = nil

	c, err := m.provider.StartChat(ctx, m.cfg)
	if err != nil {
		m.lastErr = err
		return nil, err
	}

	s := &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		CreatedAt: time.Now(),
		chat:      c,
	}
	m.current = s
	m.lastErr = nil
	slog.Debug("Chat session initialized", "sessionID", s.ID, "model", m.cfg.Model, "provider", m.provider.Name())
	return s, nil
}
