package main

import (
	"context"
	"errors"
	"time"

	"sitecost/internal/amqp"
	"sitecost/internal/backend"
	"sitecost/internal/cli"
	"sitecost/internal/config"
	"sitecost/internal/drive"
	"sitecost/internal/session"
	"sitecost/internal/settings"
	"sitecost/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, "sync-worker")
	cli.ValidateConfig(logger, cfg)

	logger.Info("Starting sync-worker", "queue", cfg.AMQPQueue)

	// The worker reads the token the web process persisted, so both must
	// share a durable settings backend.
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend holds no token shared with the web process; pushes will be dropped")
	}

	beCfg, err := backend.FromAppConfig(cfg)
	cli.Must(logger, "Invalid backend configuration", err)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	factory := backend.NewFactory(logger.Logger)
	be, err := factory.CreateBackend(bootCtx, beCfg)
	cli.Must(logger, "Failed to initialize settings backend", err, "backend", beCfg.Type)
	st := settings.New(be.Store)

	sess := session.New()
	files, err := factory.CreateDrive(bootCtx, beCfg.Drive, sess.TokenSource())
	cli.Must(logger, "Failed to initialize drive backend", err, "drive", beCfg.Drive)
	pushWorker := worker.NewPushWorker(sess, st.Tokens(), drive.NewAdapter(files, sess))

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	cli.Must(logger, "Failed to initialize AMQP client", err, "exchange", cfg.AMQPExchange)

	consumed := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		// Let the in-flight push finish before closing the connection.
		select {
		case <-consumed:
		case <-shutdownCtx.Done():
		}
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	go func() {
		defer close(consumed)
		err := amqpClient.ConsumeSnapshotPushes(ctx, pushWorker.HandleSnapshotPush)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
