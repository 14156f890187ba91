package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSStore is an ObjectStore backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore initializes a GCS client and verifies access to the bucket.
// Authentication is handled via Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, logger *zap.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or unreadable.
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close storage client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get bucket %q attributes: %w", bucket, err)
	}

	return &GCSStore{
		client: client,
		bucket: bucket,
	}, nil
}

// Put uploads data to the configured bucket.
func (s *GCSStore) Put(ctx context.Context, path, contentType string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// SignedURL issues a time-limited download link for a stored report.
func (s *GCSStore) SignedURL(path string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %q: %w", path, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
