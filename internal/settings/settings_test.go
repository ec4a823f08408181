package settings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitecost/internal/auth"
	"sitecost/internal/session"
	"sitecost/internal/settings"
	"sitecost/internal/settings/memory"
)

func TestProfileDefaultsAndSave(t *testing.T) {
	ctx := context.Background()
	s := settings.New(memory.New())

	p, err := s.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.ProjectName != settings.DefaultProjectName || p.HasPassphrase {
		t.Fatalf("unexpected defaults: %+v", p)
	}

	if err := s.SaveProfile(ctx, settings.Profile{ProjectName: " Nhà xưởng A ", GoogleClientID: "cid", GoogleAPIKey: "key"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	p, _ = s.Profile(ctx)
	if p.ProjectName != "Nhà xưởng A" || p.GoogleClientID != "cid" || p.GoogleAPIKey != "key" {
		t.Fatalf("unexpected saved profile: %+v", p)
	}

	creds, err := s.Credentials(ctx, auth.Credentials{ClientSecret: "secret", APIKey: "env-key"})
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.ClientID != "cid" || creds.APIKey != "key" || creds.ClientSecret != "secret" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestPassphrase(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := settings.New(store)

	if err := s.VerifyPassphrase(ctx, "anything"); err != nil {
		t.Fatalf("no passphrase configured should be open, got %v", err)
	}
	if err := s.SeedPassphrase(ctx, "first"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SeedPassphrase(ctx, "second"); err != nil {
		t.Fatalf("seed again: %v", err)
	}
	if err := s.VerifyPassphrase(ctx, "first"); err != nil {
		t.Fatalf("expected seeded passphrase to verify, got %v", err)
	}
	if err := s.VerifyPassphrase(ctx, "second"); !errors.Is(err, settings.ErrWrongPassphrase) {
		t.Fatalf("seed must not overwrite, got %v", err)
	}

	all, _ := store.All(ctx)
	if hash := all[settings.KeyTransactionPassword]; hash == "" || hash == "first" {
		t.Fatalf("passphrase must be stored hashed, got %q", hash)
	}

	if err := s.SetPassphrase(ctx, ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.VerifyPassphrase(ctx, "x"); err != nil {
		t.Fatalf("cleared passphrase should be open, got %v", err)
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tokens := settings.New(store).Tokens()

	if _, ok, err := tokens.LoadToken(ctx); ok || err != nil {
		t.Fatalf("expected no token, ok=%v err=%v", ok, err)
	}

	expiry := time.Date(2025, 10, 24, 13, 0, 0, 0, time.UTC)
	if err := tokens.SaveToken(ctx, session.PersistedToken{AccessToken: "ya29", Expiry: expiry}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := tokens.LoadToken(ctx)
	if err != nil || !ok || got.AccessToken != "ya29" || !got.Expiry.Equal(expiry) {
		t.Fatalf("unexpected load: %+v ok=%v err=%v", got, ok, err)
	}

	_ = store.Set(ctx, settings.KeyTokenExpiry, "garbage")
	got, ok, _ = tokens.LoadToken(ctx)
	if !ok || !got.Expiry.IsZero() || session.Usable(got, time.Now()) {
		t.Fatalf("unparseable expiry must load as unusable: %+v", got)
	}

	if err := tokens.ClearToken(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := tokens.LoadToken(ctx); ok {
		t.Fatal("token still present after clear")
	}
}
