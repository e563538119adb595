package store

import (
	"context"
	"fmt"
)

// Put stores value under (scope, key), replacing any previous value and
// bumping its version.
func (s *Store) Put(ctx context.Context, scope, key, value string) error {
	return s.PutBytes(ctx, scope, key, []byte(value))
}

// PutBytes is Put for raw values.
func (s *Store) PutBytes(ctx context.Context, scope, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (scope, key, value, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(scope, key) DO UPDATE
		SET value = excluded.value, version = kv.version + 1
	`, scope, key, value)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", scope, key, err)
	}
	return nil
}

// GetOrCreate returns the value under (scope, key). If the key is absent,
// create() is stored first and created is true.
//
// The insert uses ON CONFLICT DO NOTHING, so two processes racing on the
// same database agree on whichever value landed first.
func (s *Store) GetOrCreate(ctx context.Context, scope, key string, create func() string) (string, bool, error) {
	if v, ok, err := s.Get(ctx, scope, key); err != nil || ok {
		return v, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (scope, key, value, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(scope, key) DO NOTHING
	`, scope, key, []byte(create()))
	if err != nil {
		return "", false, fmt.Errorf("create %s/%s: %w", scope, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("create %s/%s: %w", scope, key, err)
	}

	v, ok, err := s.Get(ctx, scope, key)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, fmt.Errorf("create %s/%s: row vanished after insert", scope, key)
	}
	return v, n == 1, nil
}

// Delete removes (scope, key). Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, scope, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE scope = ? AND key = ?`, scope, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}
