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

// DocumentStatus enumerates the lifecycle of an asynchronously filled form.
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document represents a row in the onboarding_documents table.
type Document struct {
	ID           string         `json:"id"`
	EmployeeID   string         `json:"employeeId"`
	FormType     string         `json:"formType"`
	ObjectKey    *string        `json:"objectKey,omitempty"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// DocumentRepository stores filled-document metadata. The PDF bytes live in
// object storage under ObjectKey.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository constructs a repository.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// Create inserts a queued document before the fill job runs.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.Status = StatusQueued
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO onboarding_documents (id, employee_id, form_type, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, doc.ID, doc.EmployeeID, doc.FormType, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, employee_id, form_type, object_key, status, error_message, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc       Document
		objectKey sql.NullString
		errorMsg  sql.NullString
	)
	if err := row.Scan(&doc.ID, &doc.EmployeeID, &doc.FormType, &objectKey, &doc.Status, &errorMsg, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if objectKey.Valid {
		key := objectKey.String
		doc.ObjectKey = &key
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		doc.ErrorMessage = &msg
	}
	return &doc, nil
}

// Get returns a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM onboarding_documents WHERE id=$1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// ListByEmployee returns an employee's documents, newest first.
func (r *DocumentRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+` FROM onboarding_documents
		WHERE employee_id=$1 ORDER BY created_at DESC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MarkProcessing sets the status to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, StatusProcessing, nil, nil)
}

// MarkFailed marks the fill attempt as failed and stores the message.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.updateStatus(ctx, id, StatusFailed, nil, &msg)
}

// MarkCompleted updates the status and stores the object key of the PDF.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, objectKey string) error {
	return r.updateStatus(ctx, id, StatusCompleted, &objectKey, nil)
}

func (r *DocumentRepository) updateStatus(ctx context.Context, id string, status DocumentStatus, objectKey *string, errorMsg *string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE onboarding_documents
		SET status=$1,
			object_key = COALESCE($2, object_key),
			error_message = $3,
			updated_at=$4
		WHERE id=$5
	`, status, objectKey, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}
