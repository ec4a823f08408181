package main

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"sitecost/internal/auth"
)

// credentialSource returns the credentials currently in effect.
type credentialSource interface {
	Credentials(ctx context.Context, def auth.Credentials) (auth.Credentials, error)
}

// settingsGranter rebuilds the OAuth client for every grant, so a client id
// saved through the settings API applies without a restart.
type settingsGranter struct {
	source   credentialSource
	defaults auth.Credentials
	base     auth.LoopbackGranter
}

func (g *settingsGranter) Grant(ctx context.Context) (*oauth2.Token, error) {
	creds, err := g.source.Credentials(ctx, g.defaults)
	if err != nil {
		return nil, &auth.AuthError{Kind: auth.KindUnknown, Err: fmt.Errorf("load credentials: %w", err)}
	}
	lg := g.base
	lg.Config = creds.OAuthConfig()
	return lg.Grant(ctx)
}
