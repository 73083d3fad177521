package main

import (
	"fmt"
	"sort"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/mailer"
	"github.com/dharsanguruparan/OnboardOps/internal/queue"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
)

func newEmailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Send notification emails and retry failed ones",
	}
	cmd.AddCommand(newEmailSendCmd(a), newEmailRetryCmd(a))
	return cmd
}

// mailer builds the outbox-backed mail service. Without SMTP the service can
// still queue messages for the worker.
func (a *app) mailer(cmd *cobra.Command, needSMTP bool) (*mailer.Service, error) {
	pool, err := a.db(cmd.Context())
	if err != nil {
		return nil, err
	}
	var sender mailer.Sender
	if needSMTP {
		smtp, err := mailer.NewSMTPSender(a.cfg.SMTP)
		if err != nil {
			return nil, err
		}
		sender = smtp
	}
	return mailer.NewService(sender, repository.NewOutboxRepository(pool), a.cfg.EmailMaxAttempts, a.logger), nil
}

func newEmailSendCmd(a *app) *cobra.Command {
	var (
		subject  string
		body     string
		useQueue bool
	)
	cmd := &cobra.Command{
		Use:   "send TO",
		Short: "Send one email through the outbox",
		Long: `Record the message in the email outbox and deliver it over SMTP, retrying up
to ONBOARD_EMAIL_MAX_ATTEMPTS times. With --queue the message is handed to the
worker instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.mailer(cmd, !useQueue)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if !useQueue {
				e, err := svc.Send(ctx, args[0], subject, body)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ sent %s to %s (%d attempt(s))\n", e.ID, e.Recipient, e.Attempts)
				return nil
			}

			e, err := svc.Queue(ctx, args[0], subject, body)
			if err != nil {
				return err
			}
			client := asynq.NewClient(a.redisOpt())
			defer client.Close()
			if err := queue.EnqueueEmail(ctx, client, queue.EmailPayload{OutboxID: e.ID}); err != nil {
				return err
			}
			a.logger.Info("email queued", zap.String("id", e.ID), zap.String("to", e.Recipient))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ queued %s to %s\n", e.ID, e.Recipient)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Subject line")
	cmd.Flags().StringVarP(&body, "body", "b", "", "Plain text body")
	cmd.Flags().BoolVar(&useQueue, "queue", false, "Hand delivery to the worker instead of sending now")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newEmailRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Redeliver every failed outbox email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.mailer(cmd, true)
			if err != nil {
				return err
			}
			report, err := svc.RetryFailed(cmd.Context())
			if report != nil {
				out := cmd.OutOrStdout()
				ids := make([]string, 0, len(report.Errors))
				for id := range report.Errors {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(out, "✗ %s: %v\n", id, report.Errors[id])
				}
				fmt.Fprintf(out, "%d attempted, %d sent, %d failed\n", report.Attempted, report.Sent, report.Failed)
				if err == nil && report.Failed > 0 {
					err = fmt.Errorf("%d email(s) still failing", report.Failed)
				}
			}
			return err
		},
	}
}

func (a *app) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword, DB: a.cfg.RedisDB}
}
