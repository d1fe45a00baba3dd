package storage

import (
	"context"
	"errors"
	"io"
)

// Provider failures are normalized to these so callers can classify them
// without knowing which backend is configured.
var (
	ErrAccessDenied = errors.New("storage access denied")
	ErrTooLarge     = errors.New("object too large")
	ErrNetwork      = errors.New("storage unreachable")
	ErrNotFound     = errors.New("object not found")
)

// ObjectStore stores binary artifacts under caller-chosen keys in one bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	URL(key string) string
}
