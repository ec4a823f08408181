package settings

import (
	"context"
	"errors"
)

// Keys persisted in the durable key/value store.
const (
	KeyAccessToken         = "access_token"
	KeyTokenExpiry         = "token_expiry"
	KeyGoogleClientID      = "google_client_id"
	KeyGoogleAPIKey        = "google_api_key"
	KeyProjectName         = "project_name"
	KeyTransactionPassword = "transaction_password"
)

var ErrNotFound = errors.New("setting not found")

// Store is a durable string key/value store.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	All(ctx context.Context) (map[string]string, error)
}
