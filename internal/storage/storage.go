package storage

import (
	"context"

	"golang.org/x/xerrors"
)

// Storage persists comparison artifacts (diff masks, summary records).
type Storage interface {
	// Put stores data under the given key and returns the storage URL.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL.
	Get(ctx context.Context, url string) ([]byte, error)
}

// New creates the storage backend named by backend ("file" or "s3").
func New(ctx context.Context, backend string, file FileConfig, s3 S3Config) (Storage, error) {
	switch backend {
	case "file":
		return NewFileStorage(ctx, file)
	case "s3":
		return NewS3Storage(ctx, s3)
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", backend)
	}
}
