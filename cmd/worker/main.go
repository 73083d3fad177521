// Command worker renders queued documents and delivers outbox emails.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/database"
	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	"github.com/dharsanguruparan/OnboardOps/internal/logging"
	"github.com/dharsanguruparan/OnboardOps/internal/mailer"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
	"github.com/dharsanguruparan/OnboardOps/internal/s3storage"
	"github.com/dharsanguruparan/OnboardOps/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	registry, err := forms.Load(cfg.TemplateDir, cfg.SchemaFile)
	if err != nil {
		return err
	}

	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	var mail worker.EmailDeliverer
	if cfg.SMTP.Host != "" {
		sender, err := mailer.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return err
		}
		mail = mailer.NewService(sender, repository.NewOutboxRepository(pool), cfg.EmailMaxAttempts, logger.Named("mailer"))
	} else {
		logger.Warn("SMTP_HOST not set, email tasks will fail and stay in the outbox")
	}

	processor := worker.NewProcessor(
		repository.NewDocumentRepository(pool),
		store,
		forms.NewFiller(registry, logger.Named("forms")),
		mail,
		logger.Named("worker"),
	)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
		Logger:      logger.Named("asynq").Sugar(),
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker started", zap.Int("concurrency", cfg.WorkerCount))
	return server.Run(processor.Handler())
}
