// Package queue defines the asynq tasks shared by the fill service and the
// worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// FillDocumentTask renders a form for a document row created by the API.
	FillDocumentTask = "document:fill"
	// SendEmailTask delivers one outbox row.
	SendEmailTask = "email:send"
)

// FillPayload carries everything the worker needs to render the document;
// the fill is not read back from the database.
type FillPayload struct {
	DocumentID string         `json:"document_id"`
	EmployeeID string         `json:"employee_id"`
	Form       string         `json:"form"`
	Values     map[string]any `json:"values"`
	Signature  string         `json:"signature,omitempty"`
	SignedAt   time.Time      `json:"signed_at,omitempty"`
}

// EmailPayload names the outbox row to deliver.
type EmailPayload struct {
	OutboxID string `json:"outbox_id"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueFill enqueues a document fill job.
func EnqueueFill(ctx context.Context, client Enqueuer, payload FillPayload) error {
	return enqueue(ctx, client, FillDocumentTask, payload, asynq.MaxRetry(5))
}

// EnqueueEmail enqueues an email delivery. The job itself makes the bounded
// run of SMTP attempts, so asynq never retries it; rows that still fail wait
// for `onboardops email retry-failed`.
func EnqueueEmail(ctx context.Context, client Enqueuer, payload EmailPayload) error {
	return enqueue(ctx, client, SendEmailTask, payload, asynq.MaxRetry(0))
}

func enqueue(ctx context.Context, client Enqueuer, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s task: %w", taskType, err)
	}
	return nil
}
