// Package s3storage keeps filled onboarding documents in MinIO/S3.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
)

// Storage wraps MinIO/S3 interactions for the document bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.DocumentBucket, region: cfg.S3Region}, nil
}

// DocumentKey is the object key of a filled document.
func DocumentKey(employeeID, documentID, form string) string {
	return path.Join("documents", employeeID, fmt.Sprintf("%s-%s.pdf", documentID, form))
}

// EnsureBucket makes sure the document bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PutDocument uploads PDF bytes.
func (s *Storage) PutDocument(ctx context.Context, objectKey string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload document: %w", err)
	}
	return nil
}

// GetDocument fetches PDF bytes.
func (s *Storage) GetDocument(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return buf, nil
}

// PresignDocumentURL returns a signed GET URL that bypasses the fill service.
func (s *Storage) PresignDocumentURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-type", "application/pdf")
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign document: %w", err)
	}
	return u.String(), nil
}
