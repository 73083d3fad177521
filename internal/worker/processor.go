// Package worker runs the asynq handlers for document fills and email
// delivery.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	"github.com/dharsanguruparan/OnboardOps/internal/queue"
	"github.com/dharsanguruparan/OnboardOps/internal/s3storage"
)

// DocumentStore tracks document status.
type DocumentStore interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, msg string) error
	MarkCompleted(ctx context.Context, id, objectKey string) error
}

// ObjectStore receives rendered PDFs.
type ObjectStore interface {
	PutDocument(ctx context.Context, objectKey string, data []byte) error
}

// FormFiller renders a form.
type FormFiller interface {
	Fill(ctx context.Context, form forms.FormType, req forms.FillRequest) (*forms.FilledDocument, error)
}

// EmailDeliverer delivers one outbox row.
type EmailDeliverer interface {
	DeliverID(ctx context.Context, id string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	docs   DocumentStore
	store  ObjectStore
	filler FormFiller
	mail   EmailDeliverer
	logger *zap.Logger
}

// NewProcessor constructs a worker processor. mail may be nil when SMTP is
// not configured, in which case email tasks fail and stay in the outbox.
func NewProcessor(docs DocumentStore, store ObjectStore, filler FormFiller, mail EmailDeliverer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{docs: docs, store: store, filler: filler, mail: mail, logger: logger}
}

// Handler registers the fill and email handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.FillDocumentTask, p.handleFill)
	mux.HandleFunc(queue.SendEmailTask, p.handleEmail)
	return mux
}

func (p *Processor) handleFill(ctx context.Context, task *asynq.Task) error {
	var payload queue.FillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(zap.String("document_id", payload.DocumentID), zap.String("form", payload.Form))
	failure := func(err error) error {
		log.Error("fill failed", zap.Error(err))
		if markErr := p.docs.MarkFailed(ctx, payload.DocumentID, err.Error()); markErr != nil {
			log.Warn("mark failed", zap.Error(markErr))
		}
		// Bad input will not get better on retry.
		if errors.Is(err, forms.ErrInvalidSignature) || errors.Is(err, forms.ErrUnknownForm) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if err := p.docs.MarkProcessing(ctx, payload.DocumentID); err != nil {
		return failure(err)
	}
	doc, err := p.filler.Fill(ctx, forms.FormType(payload.Form), forms.FillRequest{
		Values:    payload.Values,
		Signature: payload.Signature,
		SignedAt:  payload.SignedAt,
	})
	if err != nil {
		return failure(err)
	}
	key := s3storage.DocumentKey(payload.EmployeeID, payload.DocumentID, payload.Form)
	if err := p.store.PutDocument(ctx, key, doc.Data); err != nil {
		return failure(err)
	}
	if err := p.docs.MarkCompleted(ctx, payload.DocumentID, key); err != nil {
		return failure(err)
	}
	log.Info("document filled", zap.String("object_key", key), zap.Int("bytes", len(doc.Data)))
	return nil
}

func (p *Processor) handleEmail(ctx context.Context, task *asynq.Task) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if p.mail == nil {
		return fmt.Errorf("email %s: smtp not configured: %w", payload.OutboxID, asynq.SkipRetry)
	}
	if err := p.mail.DeliverID(ctx, payload.OutboxID); err != nil {
		p.logger.Error("email delivery failed", zap.String("outbox_id", payload.OutboxID), zap.Error(err))
		return err
	}
	return nil
}
