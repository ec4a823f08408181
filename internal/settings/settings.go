// Package settings wraps the durable key/value store with the typed accessors
// the application needs: project profile, drive credentials, the edit
// passphrase and the persisted bearer token.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sitecost/internal/auth"
	"sitecost/internal/session"
)

// DefaultProjectName is shown until the user names the project.
const DefaultProjectName = "SiteCost AI"

var ErrWrongPassphrase = errors.New("wrong passphrase")

// Profile is the user-editable part of the settings.
type Profile struct {
	ProjectName    string `json:"projectName"`
	GoogleClientID string `json:"googleClientId"`
	GoogleAPIKey   string `json:"googleApiKey"`
	HasPassphrase  bool   `json:"hasPassphrase"`
}

type Settings struct {
	store Store
}

func New(store Store) *Settings {
	return &Settings{store: store}
}

func (s *Settings) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, nil
}

func (s *Settings) Profile(ctx context.Context) (Profile, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("read settings: %w", err)
	}
	p := Profile{
		ProjectName:    all[KeyProjectName],
		GoogleClientID: all[KeyGoogleClientID],
		GoogleAPIKey:   all[KeyGoogleAPIKey],
		HasPassphrase:  all[KeyTransactionPassword] != "",
	}
	if p.ProjectName == "" {
		p.ProjectName = DefaultProjectName
	}
	return p, nil
}

// SaveProfile writes the project name and drive keys. Empty fields are stored
// as given so the user can clear a key.
func (s *Settings) SaveProfile(ctx context.Context, p Profile) error {
	values := map[string]string{
		KeyProjectName:    strings.TrimSpace(p.ProjectName),
		KeyGoogleClientID: strings.TrimSpace(p.GoogleClientID),
		KeyGoogleAPIKey:   strings.TrimSpace(p.GoogleAPIKey),
	}
	for k, v := range values {
		if err := s.store.Set(ctx, k, v); err != nil {
			return fmt.Errorf("save setting %s: %w", k, err)
		}
	}
	return nil
}

// Credentials returns the stored drive credentials, falling back to def for
// any field not saved yet.
func (s *Settings) Credentials(ctx context.Context, def auth.Credentials) (auth.Credentials, error) {
	id, err := s.get(ctx, KeyGoogleClientID)
	if err != nil {
		return def, err
	}
	key, err := s.get(ctx, KeyGoogleAPIKey)
	if err != nil {
		return def, err
	}
	if id != "" {
		def.ClientID = id
	}
	if key != "" {
		def.APIKey = key
	}
	return def, nil
}

// SetPassphrase stores a bcrypt hash of the shared edit passphrase. An empty
// passphrase removes the gate.
func (s *Settings) SetPassphrase(ctx context.Context, passphrase string) error {
	if passphrase == "" {
		return s.store.Delete(ctx, KeyTransactionPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash passphrase: %w", err)
	}
	return s.store.Set(ctx, KeyTransactionPassword, string(hash))
}

// SeedPassphrase sets the passphrase only when none is stored yet.
func (s *Settings) SeedPassphrase(ctx context.Context, passphrase string) error {
	if passphrase == "" {
		return nil
	}
	cur, err := s.get(ctx, KeyTransactionPassword)
	if err != nil || cur != "" {
		return err
	}
	return s.SetPassphrase(ctx, passphrase)
}

// VerifyPassphrase succeeds when no passphrase is configured.
func (s *Settings) VerifyPassphrase(ctx context.Context, candidate string) error {
	hash, err := s.get(ctx, KeyTransactionPassword)
	if err != nil {
		return err
	}
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)); err != nil {
		return ErrWrongPassphrase
	}
	return nil
}

// Tokens exposes the persisted bearer token to the session package.
func (s *Settings) Tokens() session.TokenStore {
	return tokenStore{s}
}

type tokenStore struct{ s *Settings }

var _ session.TokenStore = tokenStore{}

func (t tokenStore) LoadToken(ctx context.Context) (session.PersistedToken, bool, error) {
	access, err := t.s.get(ctx, KeyAccessToken)
	if err != nil || access == "" {
		return session.PersistedToken{}, false, err
	}
	raw, err := t.s.get(ctx, KeyTokenExpiry)
	if err != nil {
		return session.PersistedToken{}, false, err
	}
	expiry, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// A token without a readable expiry is treated as present but unusable.
		return session.PersistedToken{AccessToken: access}, true, nil
	}
	return session.PersistedToken{AccessToken: access, Expiry: expiry}, true, nil
}

func (t tokenStore) SaveToken(ctx context.Context, tok session.PersistedToken) error {
	if err := t.s.store.Set(ctx, KeyAccessToken, tok.AccessToken); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	if err := t.s.store.Set(ctx, KeyTokenExpiry, tok.Expiry.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save token expiry: %w", err)
	}
	return nil
}

func (t tokenStore) ClearToken(ctx context.Context) error {
	return t.s.store.Delete(ctx, KeyAccessToken, KeyTokenExpiry)
}
