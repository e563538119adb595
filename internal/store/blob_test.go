package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[Backend]BlobStore {
	t.Helper()
	out := make(map[Backend]BlobStore)
	for _, b := range []Backend{BackendSQLite, BackendPebble} {
		bs, err := OpenBlobs(b, filepath.Join(t.TempDir(), string(b)))
		require.NoError(t, err, b)
		t.Cleanup(func() { bs.Close() })
		out[b] = bs
	}
	return out
}

func TestBlobStore_Contract(t *testing.T) {
	for name, bs := range openBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := bs.Get(ctx, "global-chat-history")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, bs.Put(ctx, "global-chat-history", []byte(`[{"id":"m1"}]`)))
			v, ok, err := bs.Get(ctx, "global-chat-history")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"id":"m1"}]`, string(v))

			require.NoError(t, bs.Put(ctx, "global-chat-history", []byte(`[]`)))
			v, _, err = bs.Get(ctx, "global-chat-history")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(v))
		})
	}
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pebble")
	ctx := context.Background()

	p, err := OpenPebble(path)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, "k", []byte("v")))
	require.NoError(t, p.Close())

	p, err = OpenPebble(path)
	require.NoError(t, err)
	defer p.Close()

	v, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestOpenBlobs_UnknownBackend(t *testing.T) {
	_, err := OpenBlobs("redis", t.TempDir())
	assert.Error(t, err)
}
