// Package session issues and tracks login sessions and their CSRF tokens.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/confreg/backend/pkg/utils"
)

// CookieName is the session cookie set at login.
const CookieName = "confreg_sid"

// CSRFHeader carries the per-session CSRF token on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// ErrNotFound is returned for unknown, expired or destroyed sessions.
var ErrNotFound = errors.New("session not found")

// Session is the server-side state behind a session cookie.
type Session struct {
	ID             string    `json:"id"`
	CSRFToken      string    `json:"csrfToken"`
	RegistrationID int64     `json:"registrationId"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions. Implementations must drop entries once ExpiresAt passes.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Manager creates, resolves and destroys sessions on top of a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a session manager. A non-positive ttl defaults to 12 hours.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to new sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create starts a session for registrationID with fresh id and CSRF token.
func (m *Manager) Create(ctx context.Context, registrationID int64) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	token, err := utils.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("csrf token: %w", err)
	}
	now := m.now()
	s := &Session{
		ID:             id.String(),
		CSRFToken:      token,
		RegistrationID: registrationID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Lookup returns the live session for id, or ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrNotFound
	}
	return s, nil
}

// Destroy invalidates the session immediately. Unknown ids are not an error.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}
