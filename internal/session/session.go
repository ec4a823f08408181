// Package session holds the credential state of one connected drive account.
//
// A Session is created at startup and torn down on Disconnect. It replaces
// process-wide token globals: everything that needs the bearer token gets the
// Session injected.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryMargin is subtracted from a stored token's expiry before it is trusted.
const ExpiryMargin = 60 * time.Second

// PersistedToken is the durable form of the bearer credential.
type PersistedToken struct {
	AccessToken string
	Expiry      time.Time
}

// TokenStore persists the bearer token across restarts.
type TokenStore interface {
	LoadToken(ctx context.Context) (PersistedToken, bool, error)
	SaveToken(ctx context.Context, t PersistedToken) error
	ClearToken(ctx context.Context) error
}

type Session struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	apiReady  bool
	authReady bool
	now       func() time.Time
}

func New() *Session {
	return &Session{now: time.Now}
}

// MarkAPIReady records that the drive API client is configured.
func (s *Session) MarkAPIReady() {
	s.mu.Lock()
	s.apiReady = true
	s.mu.Unlock()
}

// MarkAuthReady records that the token client is configured.
func (s *Session) MarkAuthReady() {
	s.mu.Lock()
	s.authReady = true
	s.mu.Unlock()
}

// Ready is true only once both the API client and the auth client are set up.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiReady && s.authReady
}

// ResetReadiness drops both readiness flags, e.g. when credentials change.
func (s *Session) ResetReadiness() {
	s.mu.Lock()
	s.apiReady, s.authReady = false, false
	s.mu.Unlock()
}

func (s *Session) SetToken(t *oauth2.Token) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

// Token returns the active token, or nil when not connected.
func (s *Session) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil
	}
	cp := *s.token
	return &cp
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && s.token.AccessToken != ""
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// TokenSource exposes the session to oauth2-aware HTTP clients. The token is
// looked up on every request, so a Disconnect takes effect immediately.
func (s *Session) TokenSource() oauth2.TokenSource {
	return tokenSource{s}
}

type tokenSource struct{ s *Session }

func (ts tokenSource) Token() (*oauth2.Token, error) {
	t := ts.s.Token()
	if t == nil || t.AccessToken == "" {
		return nil, ErrNoToken
	}
	return t, nil
}

// Usable reports whether a persisted token can be trusted at instant now.
func Usable(t PersistedToken, now time.Time) bool {
	if t.AccessToken == "" || t.Expiry.IsZero() {
		return false
	}
	return now.Before(t.Expiry.Add(-ExpiryMargin))
}

// TryAutoConnect restores a persisted token into the session when it is still
// usable. Otherwise the stale credential is cleared from both the store and the
// session. No network call is made.
func (s *Session) TryAutoConnect(ctx context.Context, store TokenStore) bool {
	t, ok, err := store.LoadToken(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load persisted token", "error", err)
	}
	if ok && err == nil && Usable(t, s.now()) {
		s.SetToken(&oauth2.Token{AccessToken: t.AccessToken, TokenType: "Bearer", Expiry: t.Expiry})
		slog.InfoContext(ctx, "Restored drive session from persisted token", "expiry", t.Expiry)
		return true
	}

	s.Clear()
	if ok {
		if err := store.ClearToken(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to clear stale token", "error", err)
		}
	}
	return false
}
