// Package storage persists uploaded knowledge-file bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ekaya-inc/botdesk/pkg/config"
)

// ErrNotFound is returned by Open when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey is returned for keys that could escape the store's namespace.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore stores opaque byte blobs under flat keys.
type BlobStore interface {
	// Put writes the blob. size is the exact byte count of r.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open returns a reader over the blob, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Deleting a missing blob succeeds.
	Delete(ctx context.Context, key string) error
}

// New constructs the BlobStore selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case config.StorageBackendFilesystem, "":
		return NewFilesystemStore(cfg.UploadDir)
	case config.StorageBackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// validateKey accepts only single path segments: no separators, no dot entries.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return ErrInvalidKey
	}
	for _, r := range key {
		if r == '/' || r == '\\' || r == 0 {
			return ErrInvalidKey
		}
	}
	return nil
}
