package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the string value under (scope, key).
// ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, scope, key string) (value string, ok bool, err error) {
	b, ok, err := s.GetBytes(ctx, scope, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(b), true, nil
}

// GetBytes returns the raw value under (scope, key).
func (s *Store) GetBytes(ctx context.Context, scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Version returns the overwrite counter of (scope, key), or 0 when absent.
func (s *Store) Version(ctx context.Context, scope, key string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM kv WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("version %s/%s: %w", scope, key, err)
	}
	return v, nil
}

// Keys lists the keys in scope in binary order.
func (s *Store) Keys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE scope = ? ORDER BY key ASC COLLATE BINARY`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", scope, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys %s: %w", scope, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys %s: %w", scope, err)
	}
	return keys, nil
}
