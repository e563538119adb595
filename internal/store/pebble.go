package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pebble "github.com/cockroachdb/pebble"
)

// PebbleStore is a BlobStore backed by Pebble.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates a Pebble database in directory path.
func OpenPebble(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func blobKey(key string) []byte {
	return []byte(ScopeHistory + ":" + key)
}

func (p *PebbleStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, closer, err := p.db.Get(blobKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	// value is only valid until closer.Close
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (p *PebbleStore) Put(_ context.Context, key string, value []byte) error {
	if err := p.db.Set(blobKey(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (p *PebbleStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
