// Package auth obtains, classifies and revokes the bearer token that
// authorizes drive calls.
package auth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// Scope limits access to files this application created.
const Scope = drive.DriveFileScope

// Credentials identify the OAuth client and the API project.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
	RedirectURL  string
}

// ConfigError reports missing or malformed credentials. It is never retryable:
// no remote operation can start until the configuration is fixed.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing drive credentials: %s", strings.Join(e.Missing, ", "))
}

// Validate fails fast when the client id or API key is absent.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api key")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// OAuthConfig builds the oauth2 client configuration for the drive scope.
func (c Credentials) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		Endpoint:     google.Endpoint,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{Scope},
	}
}
