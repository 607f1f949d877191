package storage

import (
	"context"
	"io"
)

// ObjectStore is the boundary to wherever uploaded media lives. Put stores the
// bytes under a caller-chosen key and returns a retrievable URL; Get fetches
// the bytes back given that URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (url string, err error)
	Get(ctx context.Context, url string) ([]byte, error)
}
