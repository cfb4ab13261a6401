// Package storage persists the tracker's documents in a key-value backend.
//
// Every backend stores opaque documents under string keys and writes a batch
// of documents atomically, so callers can move data between two documents
// without exposing a half-applied state.
package storage

import (
	"context"
	"errors"
)

// Record is one document to persist.
type Record struct {
	Key   string
	Value []byte
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage closed")

// Backend is implemented by every document store in this package.
type Backend interface {
	// Load returns the stored document or nil when the key was never written.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save writes all records in one atomic step.
	Save(ctx context.Context, records ...Record) error
	Close() error
}
