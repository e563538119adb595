package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/store"
	"github.com/roach88/chatsync/internal/testutil"
)

func openKV(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolve_CreatesOnce(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()

	first, err := Resolve(ctx, kv, testutil.NewFixedIDGenerator("1111"))
	require.NoError(t, err)
	assert.Equal(t, "chat-client-1111", first.ClientID)
	assert.True(t, first.Persistent)
	assert.True(t, first.Created)

	second, err := Resolve(ctx, kv, testutil.NewFixedIDGenerator("2222"))
	require.NoError(t, err)
	assert.Equal(t, "chat-client-1111", second.ClientID, "stored id wins over a fresh one")
	assert.False(t, second.Created)
}

func TestResolve_StoresUnderFixedKey(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()

	id, err := Resolve(ctx, kv, chat.UUIDv4Generator{})
	require.NoError(t, err)

	got, ok, err := kv.Get(ctx, Scope, Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id.ClientID, got)
}

type failingKV struct{ err error }

func (f failingKV) GetOrCreate(context.Context, string, string, func() string) (string, bool, error) {
	return "", false, f.err
}

type emptyKV struct{}

func (emptyKV) GetOrCreate(context.Context, string, string, func() string) (string, bool, error) {
	return "", false, nil
}

func TestResolve_Errors(t *testing.T) {
	boom := errors.New("locked")

	_, err := Resolve(context.Background(), failingKV{err: boom}, chat.UUIDv4Generator{})
	assert.ErrorIs(t, err, boom)

	_, err = Resolve(context.Background(), emptyKV{}, chat.UUIDv4Generator{})
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestEphemeral(t *testing.T) {
	id := Ephemeral(testutil.NewFixedIDGenerator("abc"))

	assert.Equal(t, "chat-client-abc", id.ClientID)
	assert.False(t, id.Persistent)
}
