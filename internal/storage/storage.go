// Package storage holds the blob stores report files are uploaded to
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned when a blob does not exist
var ErrObjectNotFound = errors.New("object not found")

// BlobStore is the object storage used for generated report files
type BlobStore interface {
	// Upload writes content at path, overwriting any existing object
	Upload(ctx context.Context, path string, content []byte, contentType string) error

	// SignURL mints a time-limited download link for an existing object
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// DeleteMany removes the objects; missing objects are not an error
	DeleteMany(ctx context.Context, paths []string) error
}
