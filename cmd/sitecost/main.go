package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sitecost/internal/amqp"
	"sitecost/internal/auth"
	"sitecost/internal/backend"
	"sitecost/internal/cli"
	"sitecost/internal/config"
	"sitecost/internal/drive"
	apphttp "sitecost/internal/http"
	"sitecost/internal/services"
	"sitecost/internal/session"
	"sitecost/internal/settings"
	"sitecost/internal/state"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, "sitecost")
	cli.ValidateConfig(logger, cfg)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	beCfg, err := backend.FromAppConfig(cfg)
	cli.Must(logger, "Invalid backend configuration", err)

	factory := backend.NewFactory(logger.Logger)
	be, err := factory.CreateBackend(bootCtx, beCfg)
	cli.Must(logger, "Failed to initialize settings backend", err, "backend", beCfg.Type)
	st := settings.New(be.Store)

	sess := session.New()
	files, err := factory.CreateDrive(bootCtx, beCfg.Drive, sess.TokenSource())
	cli.Must(logger, "Failed to initialize drive backend", err, "drive", beCfg.Drive)
	remote := drive.NewAdapter(files, sess)

	hub := apphttp.NewHub(cfg.CORSOrigins)

	var (
		dispatcher services.Dispatcher
		inline     *services.InlineDispatcher
		queue      *amqp.Client
	)
	if cfg.SyncMode == config.SyncQueue {
		queue, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cli.Must(logger, "Failed to connect to AMQP", err, "exchange", cfg.AMQPExchange)
		dispatcher = services.NewQueueDispatcher(queue, hub)
		logger.Info("Snapshot pushes go through the queue", "queue", cfg.AMQPQueue)
	} else {
		inline = services.NewInlineDispatcher(remote, hub)
		dispatcher = inline
	}

	defaults := auth.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		APIKey:       cfg.GoogleAPIKey,
	}
	granter := &settingsGranter{
		source:   st,
		defaults: defaults,
		base: auth.LoopbackGranter{
			Addr:    cfg.RedirectAddr(),
			Timeout: cfg.OAuthTimeout,
			Prompt: func(authURL string) error {
				logger.Info("Drive consent required", "url", authURL)
				hub.Notify(services.Event{Type: services.EventConsent, URL: authURL})
				return nil
			},
		},
	}

	ledger := services.NewLedgerService(services.Deps{
		State:      state.NewSeeded(),
		Session:    sess,
		Remote:     remote,
		Tokens:     st.Tokens(),
		Granter:    granter,
		Revoker:    auth.Revoker{},
		Dispatcher: dispatcher,
		Notifier:   hub,
	})

	if err := st.SeedPassphrase(bootCtx, cfg.EditPassphrase); err != nil {
		logger.Warn("Failed to seed edit passphrase", "error", err)
	}
	creds, err := st.Credentials(bootCtx, defaults)
	cli.Must(logger, "Failed to read stored credentials", err)
	var cfgErr *auth.ConfigError
	if err := ledger.Initialize(creds); errors.As(err, &cfgErr) {
		logger.Warn("Drive sync disabled until credentials are configured", "error", err)
	}
	if ledger.AutoConnect(bootCtx) {
		logger.Info("Drive session restored")
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:             ":" + cfg.Port,
		CORSOrigins:      cfg.CORSOrigins,
		ReceiptCacheSize: cfg.ReceiptCacheSize,
		ReceiptCacheTTL:  cfg.ReceiptCacheTTL,
		WriteTimeout:     cfg.OAuthTimeout + 30*time.Second,
		Credentials:      defaults,
		Logger:           logger,
	}, ledger, st, hub)
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if inline != nil {
			inline.Wait()
		}
		if queue != nil {
			if err := queue.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	srv.Start(ctx)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server",
			"addr", srv.Addr,
			"data_backend", cfg.DataBackend,
			"drive_backend", cfg.DriveBackend,
			"sync_mode", cfg.SyncMode,
			"drive_ready", ledger.Status().Ready)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Server failed to start", "error", err, "addr", srv.Addr)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped")
}
