package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryOutbox struct {
	mu   sync.Mutex
	rows map[string]*repository.Email
	// history records every status write as "id:status:attempts".
	history []string
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{rows: map[string]*repository.Email{}}
}

func (o *memoryOutbox) Enqueue(_ context.Context, e *repository.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e.Status = repository.EmailPending
	cp := *e
	o.rows[e.ID] = &cp
	return nil
}

func (o *memoryOutbox) Get(_ context.Context, id string) (*repository.Email, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (o *memoryOutbox) ListFailed(_ context.Context) ([]*repository.Email, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*repository.Email
	for _, e := range o.rows {
		if e.Status == repository.EmailFailed {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (o *memoryOutbox) MarkSent(_ context.Context, id string, attempts int) error {
	return o.set(id, repository.EmailSent, attempts, nil)
}

func (o *memoryOutbox) MarkFailed(_ context.Context, id string, attempts int, msg string) error {
	return o.set(id, repository.EmailFailed, attempts, &msg)
}

func (o *memoryOutbox) set(id string, status repository.EmailStatus, attempts int, lastErr *string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	e.Attempts = attempts
	e.LastError = lastErr
	o.history = append(o.history, fmt.Sprintf("%s:%s:%d", id, status, attempts))
	return nil
}

// scriptedSender fails for recipients listed in failures until their budget
// is used up.
type scriptedSender struct {
	mu       sync.Mutex
	failures map[string]int
	sent     []string
	calls    int
}

func (s *scriptedSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	to := msg.To[0]
	if s.failures[to] > 0 {
		s.failures[to]--
		return errors.New("421 service not available")
	}
	s.sent = append(s.sent, to)
	return nil
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	outbox := newMemoryOutbox()
	sender := &scriptedSender{}
	svc := NewService(sender, outbox, 3, nil)

	e, err := svc.Send(context.Background(), "new.hire@demo.com", "Welcome", "<p>Hi</p>")
	require.NoError(t, err)
	assert.Equal(t, repository.EmailSent, e.Status)
	assert.Equal(t, 1, e.Attempts)
	assert.Equal(t, []string{"new.hire@demo.com"}, sender.sent)

	stored, err := outbox.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.EmailSent, stored.Status)
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	outbox := newMemoryOutbox()
	sender := &scriptedSender{failures: map[string]int{"hr@demo.com": 2}}
	svc := NewService(sender, outbox, 3, nil)

	e, err := svc.Send(context.Background(), "hr@demo.com", "Forms ready", "body")
	require.NoError(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []string{
		e.ID + ":failed:1",
		e.ID + ":failed:2",
		e.ID + ":sent:3",
	}, outbox.history)
}

func TestDeliverStopsAfterMaxAttempts(t *testing.T) {
	outbox := newMemoryOutbox()
	sender := &scriptedSender{failures: map[string]int{"down@demo.com": 10}}
	svc := NewService(sender, outbox, 3, nil)

	e, err := svc.Send(context.Background(), "down@demo.com", "Subject", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "421 service not available")
	assert.Equal(t, 3, sender.calls)

	stored, err := outbox.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.EmailFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	require.NotNil(t, stored.LastError)
}

func TestRetryFailedContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	outbox := newMemoryOutbox()
	sender := &scriptedSender{failures: map[string]int{"a@demo.com": 1, "b@demo.com": 1, "c@demo.com": 10}}
	svc := NewService(sender, outbox, 1, nil)

	for _, to := range []string{"a@demo.com", "b@demo.com", "c@demo.com"} {
		_, err := svc.Send(ctx, to, "Reminder", "body")
		require.Error(t, err)
	}
	ok, err := svc.Send(ctx, "ok@demo.com", "Reminder", "body")
	require.NoError(t, err)

	report, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Errors, 1)

	failed, err := outbox.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c@demo.com", failed[0].Recipient)
	assert.Equal(t, 2, failed[0].Attempts, "attempts accumulate across retries")

	stored, err := outbox.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts, "sent rows are not retried")
}

func TestDeliverIDSkipsSent(t *testing.T) {
	ctx := context.Background()
	outbox := newMemoryOutbox()
	sender := &scriptedSender{}
	svc := NewService(sender, outbox, 2, nil)

	e, err := svc.Send(ctx, "x@demo.com", "s", "b")
	require.NoError(t, err)
	require.NoError(t, svc.DeliverID(ctx, e.ID))
	assert.Equal(t, 1, sender.calls)

	queued, err := svc.Queue(ctx, "y@demo.com", "s", "b")
	require.NoError(t, err)
	require.NoError(t, svc.DeliverID(ctx, queued.ID))
	assert.Equal(t, 2, sender.calls)

	require.ErrorIs(t, svc.DeliverID(ctx, "missing"), repository.ErrNotFound)
}

func TestDeliverHonorsCancellation(t *testing.T) {
	outbox := newMemoryOutbox()
	sender := &scriptedSender{}
	svc := NewService(sender, outbox, 3, nil)
	e, err := svc.Queue(context.Background(), "x@demo.com", "s", "b")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Deliver(ctx, e), context.Canceled)
	assert.Zero(t, sender.calls)
}

func TestQueueRequiresRecipient(t *testing.T) {
	svc := NewService(&scriptedSender{}, newMemoryOutbox(), 1, nil)
	_, err := svc.Queue(context.Background(), "  ", "s", "b")
	require.Error(t, err)
}

func TestNewSMTPSenderRequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.demo.com"})
	require.Error(t, err)

	s, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.demo.com", Port: 587, From: "Onboarding <no-reply@demo.com>"})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), Message{}), "no recipients is a no-op")
}
