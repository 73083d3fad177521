package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/smoke"
)

func newSmokeCmd(a *app) *cobra.Command {
	var (
		opts    smoke.Options
		timeout = 30
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the end-to-end API smoke checks",
		Long: fmt.Sprintf(`Log in as a manager and an HR user and exercise the onboarding API against
ONBOARD_API_BASE_URL and ONBOARD_API_PREFIX. Every step runs even when an
earlier one fails; the command exits non-zero if any step failed.

Steps: %s`, strings.Join(smoke.StepNames(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Manager = credsOrEnv(opts.Manager, "SMOKE_MANAGER")
			opts.HR = credsOrEnv(opts.HR, "SMOKE_HR")
			client := smoke.NewClient(a.cfg.Endpoint, &http.Client{Timeout: seconds(timeout)})
			st := &smoke.State{Client: client, Options: opts, Logger: a.logger}

			a.logger.Debug("smoke run starting", zap.String("endpoint", a.cfg.Endpoint("")))
			report := smoke.Run(cmd.Context(), st, smoke.DefaultSteps())
			report.Print(cmd.OutOrStdout())
			if !report.OK() {
				return fmt.Errorf("%d smoke step(s) failed", report.Failed())
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Manager.Email, "manager-email", "", "Manager login (default $SMOKE_MANAGER_EMAIL)")
	f.StringVar(&opts.Manager.Password, "manager-password", "", "Manager password (default $SMOKE_MANAGER_PASSWORD)")
	f.StringVar(&opts.HR.Email, "hr-email", "", "HR login (default $SMOKE_HR_EMAIL)")
	f.StringVar(&opts.HR.Password, "hr-password", "", "HR password (default $SMOKE_HR_PASSWORD)")
	f.StringVar(&opts.PDFForm, "form", "direct_deposit", "Form rendered by the generate-pdf step")
	f.StringSliceVar(&opts.Skip, "skip", nil, "Steps to skip")
	f.IntVar(&timeout, "timeout", timeout, "Per-request timeout in seconds")
	return cmd
}

func credsOrEnv(c smoke.Credentials, prefix string) smoke.Credentials {
	if c.Email == "" {
		c.Email = os.Getenv(prefix + "_EMAIL")
	}
	if c.Password == "" {
		c.Password = os.Getenv(prefix + "_PASSWORD")
	}
	return c
}
