// Package storage contains the object store backends files are kept in
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// Object describes a single stored object
type Object struct {
	Key  string
	Size int64
}

// Store is an opaque key/value blob store. Keys are content addressed by
// the caller, the store itself knows nothing about deduplication.
type Store interface {
	// Put streams size bytes from r under key. A failed or cancelled Put
	// must not leave a partial object behind.
	Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	// Get returns ErrObjectNotFound if key doesn't exist
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns ErrObjectNotFound if key doesn't exist
	Stat(ctx context.Context, key string) (Object, error)
	// Delete is a no-op for missing keys
	Delete(ctx context.Context, key string) error
	// Walk calls fn for every stored object. Returning an error from fn
	// stops the walk and is returned as is.
	Walk(ctx context.Context, fn func(Object) error) error
}
