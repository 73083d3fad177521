// Command onboardops is the operational toolkit for the onboarding backend:
// schema patches, account maintenance, table introspection, form filling,
// email retries and API smoke tests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/database"
	"github.com/dharsanguruparan/OnboardOps/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &app{}, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "onboardops: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command line and releases the pool and logger whether or
// not the command succeeded; cobra skips PersistentPostRun on failure.
func run(ctx context.Context, a *app, args []string) error {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	a.close()
	return err
}

// app carries state shared by every subcommand. cfg and logger are set in
// PersistentPreRunE; the pool is opened on first use.
type app struct {
	verbose bool
	envFile string

	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboardops",
		Short: "Operational toolkit for the hotel onboarding backend",
		Long: `onboardops runs the one-off tasks around the onboarding app: applying schema
patches to Supabase, resetting passwords and provisioning test accounts, inspecting
tables, filling the onboarding PDF forms, retrying failed emails, smoke testing
the REST API and running the local development stack.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if a.envFile != "" {
				files = append(files, a.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Verbose(cfg.LogLevel, a.verbose), cfg.LogJSON)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	cmd.AddCommand(
		newDBCmd(a),
		newMigrateCmd(a),
		newAccountsCmd(a),
		newFormsCmd(a),
		newEmailCmd(a),
		newSmokeCmd(a),
		newTokenCmd(a),
		newStackCmd(a),
		newRunCmd(a),
	)
	return cmd
}

// db connects on first use.
func (a *app) db(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := database.Connect(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
		a.logger = nil
	}
}
