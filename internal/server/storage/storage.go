// Package storage provides blob storage backends for uploaded file bytes.
// Blobs are keyed by the metadata record's storage key and carry no structure
// beyond that: no directories, no listing.
package storage

import (
	"context"
	"io"
)

// BlobStore is the byte store behind the metadata records. Get returns
// common.ErrNotFound for a missing key; Delete on a missing key is a no-op,
// so compensation and cleanup paths stay idempotent.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
