// Package storage provides the object storage capability consumed by the
// backup pipeline: paginated listing, streaming reads, and streaming
// (multipart) writes against S3-compatible backends such as DigitalOcean
// Spaces.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains metadata about an object in storage.
type ObjectInfo struct {
	// Key is the full object key/path in the bucket.
	Key string
	// Size is the object size in bytes.
	Size int64
	// LastModified is when the object was last modified.
	LastModified time.Time
	// ETag is the entity tag for the object.
	ETag string
}

// ObjectStorage defines the operations the backup pipeline needs from a
// bucket. Implementations must be safe for concurrent use.
type ObjectStorage interface {
	// List returns metadata for every object in the bucket, draining
	// pagination completely. Order is as returned by the backend.
	// An empty bucket yields an empty slice and no error.
	List(ctx context.Context) ([]ObjectInfo, error)

	// Download retrieves an object and returns a reader for its contents.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Upload stores the contents of body as an object with the given key.
	// The size parameter is the expected content length; pass -1 if unknown,
	// in which case the implementation must stream via multipart upload.
	Upload(ctx context.Context, key string, body io.Reader, size int64) error

	// Head retrieves metadata for a single object without downloading its
	// contents. Returns nil and no error if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
}
