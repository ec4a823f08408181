package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RevokeURL is Google's token revocation endpoint.
const RevokeURL = "https://oauth2.googleapis.com/revoke"

// Revoker invalidates a bearer token at the provider.
type Revoker struct {
	Client   *http.Client
	Endpoint string
}

func (r Revoker) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = RevokeURL
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}
