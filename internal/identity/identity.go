// Package identity resolves the session's client id.
//
// A client id is created once and persisted under a fixed key, so that a
// restarted client keeps authorship of its messages. Without durable
// storage the id is ephemeral and lives for one session.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/chatsync/internal/chat"
)

const (
	// Scope is the storage scope for client identity.
	Scope = "local"

	// Key is the storage key of the persisted client id.
	Key = "pro-react-chat-app-client-id"

	// Prefix starts every generated client id.
	Prefix = "chat-client-"
)

// ErrEmptyID is returned when storage holds an empty client id.
var ErrEmptyID = errors.New("stored client id is empty")

// KV is the durable key-value storage identity needs.
//
// GetOrCreate returns the value under (scope, key), storing create() first
// if the key is absent. created reports whether the value was just stored.
type KV interface {
	GetOrCreate(ctx context.Context, scope, key string, create func() string) (value string, created bool, err error)
}

// Identity is a resolved client identity.
type Identity struct {
	ClientID string

	// Persistent is false for ephemeral identities.
	Persistent bool

	// Created is set when the id was generated during this resolve.
	Created bool
}

// New returns a fresh client id from gen.
func New(gen chat.IDGenerator) string {
	return Prefix + gen.Generate()
}

// Resolve loads the persisted client id, creating it on first use.
func Resolve(ctx context.Context, kv KV, gen chat.IDGenerator) (Identity, error) {
	id, created, err := kv.GetOrCreate(ctx, Scope, Key, func() string { return New(gen) })
	if err != nil {
		return Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	if id == "" {
		return Identity{}, fmt.Errorf("resolve identity: %w", ErrEmptyID)
	}
	return Identity{ClientID: id, Persistent: true, Created: created}, nil
}

// Ephemeral returns an identity that is not persisted.
func Ephemeral(gen chat.IDGenerator) Identity {
	return Identity{ClientID: New(gen), Created: true}
}
