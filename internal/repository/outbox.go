package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailStatus is the delivery state of an outbox row.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// Email is a row in email_outbox.
type Email struct {
	ID        string
	Recipient string
	Subject   string
	Body      string
	Status    EmailStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboxRepository records every outgoing message and its attempts.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository constructs a repository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Enqueue inserts a pending message.
func (r *OutboxRepository) Enqueue(ctx context.Context, e *Email) error {
	now := time.Now().UTC()
	e.Status = EmailPending
	e.Attempts = 0
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_outbox (id, recipient, subject, body, status, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.Recipient, e.Subject, e.Body, e.Status, e.Attempts, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}

const emailColumns = `id, recipient, subject, body, status, attempts, last_error, created_at, updated_at`

func scanEmail(row pgx.Row) (*Email, error) {
	var (
		e       Email
		lastErr sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Recipient, &e.Subject, &e.Body, &e.Status, &e.Attempts, &lastErr, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if lastErr.Valid {
		msg := lastErr.String
		e.LastError = &msg
	}
	return &e, nil
}

// Get returns a message by id.
func (r *OutboxRepository) Get(ctx context.Context, id string) (*Email, error) {
	e, err := scanEmail(r.pool.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_outbox WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select email: %w", err)
	}
	return e, nil
}

// ListFailed returns every failed message, oldest first.
func (r *OutboxRepository) ListFailed(ctx context.Context) ([]*Email, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+emailColumns+` FROM email_outbox WHERE status=$1 ORDER BY created_at`, EmailFailed)
	if err != nil {
		return nil, fmt.Errorf("select failed emails: %w", err)
	}
	defer rows.Close()
	var out []*Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent records a successful attempt.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, attempts int) error {
	return r.update(ctx, id, EmailSent, attempts, nil)
}

// MarkFailed records a failed attempt. The row stays failed until a later
// attempt succeeds.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, msg string) error {
	return r.update(ctx, id, EmailFailed, attempts, &msg)
}

func (r *OutboxRepository) update(ctx context.Context, id string, status EmailStatus, attempts int, lastErr *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE email_outbox
		SET status=$1, attempts=$2, last_error=$3, updated_at=$4
		WHERE id=$5
	`, status, attempts, lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}
