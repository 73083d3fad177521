// Command server runs the form fill service: synchronous fills, queued
// document jobs and signed download links.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/api"
	"github.com/dharsanguruparan/OnboardOps/internal/auth"
	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/database"
	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	"github.com/dharsanguruparan/OnboardOps/internal/logging"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
	"github.com/dharsanguruparan/OnboardOps/internal/s3storage"
	"github.com/dharsanguruparan/OnboardOps/internal/signing"
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
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Schemas are checked against templates before anything else so a broken
	// mapping never reaches a request.
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

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	srv := api.New(cfg, api.Deps{
		Filler: forms.NewFiller(registry, logger.Named("forms")),
		Docs:   repository.NewDocumentRepository(pool),
		Store:  store,
		Queue:  client,
		Signer: signing.NewSigner(cfg.SigningSecret, cfg.SignedURLTTL),
		Tokens: auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Logger: logger.Named("api"),
	})
	return srv.Run(ctx)
}
