package object

import (
	"context"
	"io"
	"time"
)

// PutResult describes a stored blob.
type PutResult struct {
	Key       string
	Checksum  string
	SizeBytes int64
	MimeType  string
}

// BlobStore defines the contract for durable binary storage. Keys are
// opaque references, not retrievable URLs; time-limited URLs are issued
// separately via GetURL.
type BlobStore interface {
	Put(ctx context.Context, orgID string, fileName string, r io.Reader) (PutResult, error)
	PutDerived(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	GetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
