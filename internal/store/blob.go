package store

import (
	"context"
	"fmt"
)

// ScopeHistory is the kv scope of snapshot blobs.
const ScopeHistory = "history"

// BlobStore stores opaque values by key.
type BlobStore interface {
	// Get returns the value under key; ok is false when absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names a BlobStore implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
)

// OpenBlobs opens the blob backend at path.
func OpenBlobs(backend Backend, path string) (BlobStore, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := Open(path)
		if err != nil {
			return nil, err
		}
		return s.Blobs(ScopeHistory), nil
	case BackendPebble:
		return OpenPebble(path)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", backend)
	}
}

// SQLiteBlobs is a BlobStore over one scope of the kv table.
type SQLiteBlobs struct {
	store *Store
	scope string
}

// Blobs returns a BlobStore view of scope. Closing it closes s.
func (s *Store) Blobs(scope string) *SQLiteBlobs {
	return &SQLiteBlobs{store: s, scope: scope}
}

func (b *SQLiteBlobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.store.GetBytes(ctx, b.scope, key)
}

func (b *SQLiteBlobs) Put(ctx context.Context, key string, value []byte) error {
	return b.store.PutBytes(ctx, b.scope, key, value)
}

func (b *SQLiteBlobs) Close() error {
	return b.store.Close()
}
