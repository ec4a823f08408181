// Command drive-connect runs the drive consent flow from a terminal and
// stores the resulting token where cmd/sitecost restores it on start-up.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"sitecost/internal/auth"
	"sitecost/internal/backend"
	"sitecost/internal/cli"
	"sitecost/internal/config"
	"sitecost/internal/session"
	"sitecost/internal/settings"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, "drive-connect")
	cli.ValidateConfig(logger, cfg)

	if cfg.DataBackend == config.BackendMemory {
		logger.Error("A persistent DATA_BACKEND is required to store the token", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	beCfg, err := backend.FromAppConfig(cfg)
	cli.Must(logger, "Invalid backend configuration", err)
	be, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, beCfg)
	cli.Must(logger, "Failed to initialize settings backend", err, "backend", beCfg.Type)
	defer func() {
		if be.Cleanup != nil {
			_ = be.Cleanup()
		}
	}()
	st := settings.New(be.Store)

	creds, err := st.Credentials(ctx, auth.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		APIKey:       cfg.GoogleAPIKey,
	})
	cli.Must(logger, "Failed to read stored credentials", err)
	cli.Must(logger, "Drive credentials incomplete", creds.Validate())

	granter := &auth.LoopbackGranter{
		Config:  creds.OAuthConfig(),
		Addr:    cfg.RedirectAddr(),
		Timeout: cfg.OAuthTimeout,
		Prompt: func(authURL string) error {
			_, err := fmt.Printf("Open this URL to authorize:\n%s\n", authURL)
			return err
		},
	}
	tok, err := granter.Grant(ctx)
	if err != nil {
		var ae *auth.AuthError
		if errors.As(err, &ae) {
			logger.Error("Authorization failed", "kind", ae.Kind, "hint", ae.Guidance())
		} else {
			logger.Error("Authorization failed", "error", err)
		}
		os.Exit(1)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	err = st.Tokens().SaveToken(ctx, session.PersistedToken{AccessToken: tok.AccessToken, Expiry: expiry})
	cli.Must(logger, "Failed to save token", err)
	logger.Info("Saved drive token", "backend", beCfg.Type, "expiry", expiry.Format(time.RFC3339))
}
