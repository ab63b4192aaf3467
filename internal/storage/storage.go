// Package storage persists small JSON documents such as cached schema
// records. Backends live in storage/fs and storage/s3.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Blobs reads and replaces whole documents by key. A Write fully replaces
// any earlier document under the same key.
type Blobs interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, body []byte, contentType string) error
}
