package s3storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/OnboardOps/internal/config"
)

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "documents/emp-9/doc-1-w4.pdf", DocumentKey("emp-9", "doc-1", "w4"))
}

func TestPresignDocumentURL(t *testing.T) {
	store, err := New(&config.Config{
		S3Endpoint:     "localhost:9000",
		S3AccessKey:    "minio",
		S3SecretKey:    "minio123",
		S3Region:       "us-east-1",
		DocumentBucket: "onboarding-documents",
	})
	require.NoError(t, err)

	raw, err := store.PresignDocumentURL(context.Background(), "documents/emp-9/doc-1-w4.pdf", 5*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/onboarding-documents/documents/emp-9/"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "application/pdf", u.Query().Get("response-content-type"))
}
