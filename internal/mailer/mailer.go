// Package mailer sends onboarding emails through SMTP and records every
// attempt in the email outbox.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/go-mail/mail/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
)

// Message is one outgoing email. Body is HTML.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers a single message once.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay using mandatory STARTTLS.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender validates the relay settings.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send dials the relay and sends msg. The dial itself is not cancellable, so
// ctx is only checked up front.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.SkipTLSVerify,
	}
	d.Timeout = 15 * time.Second
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// OutboxStore is the part of repository.OutboxRepository the service needs.
type OutboxStore interface {
	Enqueue(ctx context.Context, e *repository.Email) error
	Get(ctx context.Context, id string) (*repository.Email, error)
	ListFailed(ctx context.Context) ([]*repository.Email, error)
	MarkSent(ctx context.Context, id string, attempts int) error
	MarkFailed(ctx context.Context, id string, attempts int, msg string) error
}

// Service queues and delivers outbox messages.
type Service struct {
	sender      Sender
	outbox      OutboxStore
	maxAttempts int
	logger      *zap.Logger
}

// NewService constructs a Service. maxAttempts bounds the attempts made by a
// single Deliver call.
func NewService(sender Sender, outbox OutboxStore, maxAttempts int, logger *zap.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sender: sender, outbox: outbox, maxAttempts: maxAttempts, logger: logger}
}

// Queue records a pending message without sending it.
func (s *Service) Queue(ctx context.Context, to, subject, body string) (*repository.Email, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.New("recipient is required")
	}
	e := &repository.Email{ID: uuid.NewString(), Recipient: to, Subject: subject, Body: body}
	if err := s.outbox.Enqueue(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Send queues a message and delivers it immediately.
func (s *Service) Send(ctx context.Context, to, subject, body string) (*repository.Email, error) {
	e, err := s.Queue(ctx, to, subject, body)
	if err != nil {
		return nil, err
	}
	return e, s.Deliver(ctx, e)
}

// DeliverID loads an outbox row and delivers it. Rows already sent are left
// alone.
func (s *Service) DeliverID(ctx context.Context, id string) error {
	e, err := s.outbox.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == repository.EmailSent {
		s.logger.Debug("email already sent", zap.String("id", id))
		return nil
	}
	return s.Deliver(ctx, e)
}

// Deliver tries to send e up to maxAttempts times in a row with no delay
// between attempts. Every attempt is recorded; the attempt counter on the row
// keeps growing across calls. The last send error is returned when every
// attempt fails.
func (s *Service) Deliver(ctx context.Context, e *repository.Email) error {
	msg := Message{To: []string{e.Recipient}, Subject: e.Subject, Body: e.Body}
	var lastErr error
	for i := 0; i < s.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Attempts++
		lastErr = s.sender.Send(ctx, msg)
		if lastErr == nil {
			e.Status = repository.EmailSent
			e.LastError = nil
			if err := s.outbox.MarkSent(ctx, e.ID, e.Attempts); err != nil {
				return err
			}
			s.logger.Info("email sent", zap.String("id", e.ID), zap.String("to", e.Recipient), zap.Int("attempts", e.Attempts))
			return nil
		}
		msgText := lastErr.Error()
		e.Status = repository.EmailFailed
		e.LastError = &msgText
		if err := s.outbox.MarkFailed(ctx, e.ID, e.Attempts, msgText); err != nil {
			return err
		}
		s.logger.Warn("email attempt failed",
			zap.String("id", e.ID),
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(lastErr))
	}
	return fmt.Errorf("deliver email %s after %d attempts: %w", e.ID, s.maxAttempts, lastErr)
}

// RetryReport summarizes a RetryFailed batch.
type RetryReport struct {
	Attempted int
	Sent      int
	Failed    int
	Errors    map[string]error
}

// RetryFailed redelivers every failed outbox row. A row that fails again does
// not stop the batch.
func (s *Service) RetryFailed(ctx context.Context) (*RetryReport, error) {
	failed, err := s.outbox.ListFailed(ctx)
	if err != nil {
		return nil, err
	}
	report := &RetryReport{Errors: map[string]error{}}
	for _, e := range failed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		if err := s.Deliver(ctx, e); err != nil {
			report.Failed++
			report.Errors[e.ID] = err
			continue
		}
		report.Sent++
	}
	return report, nil
}
