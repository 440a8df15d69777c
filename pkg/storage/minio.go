// Package storage provides the opaque image blob store behind schedule
// attachments. Contents are never inspected here; the portal only hands
// out keys and public URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/campuslink/portal-api/pkg/config"
)

// BlobStore uploads and deletes opaque binary objects.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, filename, mimeType string, metadata map[string]string) (key string, url string, err error)
	Delete(ctx context.Context, key string) error
}

// MinioStore is the MinIO-backed BlobStore.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %q: %w", cfg.Bucket, err)
		}
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// Upload stores the bytes under a fresh key derived from the filename.
func (s *MinioStore) Upload(ctx context.Context, data []byte, filename, mimeType string, metadata map[string]string) (string, string, error) {
	key := uuid.NewString()
	if ext := path.Ext(filename); ext != "" {
		key += ext
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  mimeType,
		UserMetadata: metadata,
	})
	if err != nil {
		return "", "", fmt.Errorf("storage: put object: %w", err)
	}

	return key, s.publicURL + "/" + key, nil
}

// Delete removes an object; a missing object is not an error.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("storage: remove object %q: %w", key, err)
	}
	return nil
}
