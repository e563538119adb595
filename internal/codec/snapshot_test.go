package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/chat"
)

func errorsIsNotPublishable(err error) bool {
	return errors.Is(err, ErrNotPublishable)
}

func TestEncodeSnapshot_Golden(t *testing.T) {
	msgs := []chat.Message{
		{ID: "m1", Text: "hi", SenderID: "A"},
		{ID: "m2", Text: "yo", SenderID: "B", Reactions: chat.Reactions{"🎉": {"A"}}},
	}

	data, err := EncodeSnapshot(msgs)
	require.NoError(t, err)

	newGoldie(t).Assert(t, "snapshot", data)
}

func TestEncodeSnapshot_EmptyIsSentinel(t *testing.T) {
	data, err := EncodeSnapshot(nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.True(t, snap.Cleared)
	assert.Equal(t, 0, snap.Log().Len())
}

func TestEncodeSnapshotArray_EmptyIsArray(t *testing.T) {
	data, err := EncodeSnapshotArray(nil)

	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEncodeSnapshot_RejectsErrorMessages(t *testing.T) {
	_, err := EncodeSnapshot([]chat.Message{{ID: "e1", SenderID: "A", IsError: true}})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPublishable)
}

func TestDecodeSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ids     []string
		cleared bool
	}{
		{name: "null", payload: `null`},
		{name: "empty array", payload: `[]`, ids: []string{}},
		{name: "ordered", payload: `[{"id":"b","text":"1","senderId":"A"},{"id":"a","text":"2","senderId":"B"}]`, ids: []string{"b", "a"}},
		{name: "duplicates collapse in log", payload: `[{"id":"a","senderId":"A"},{"id":"a","senderId":"B"}]`, ids: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := DecodeSnapshot([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.cleared, snap.Cleared)

			ids := snap.Log().IDs()
			if tt.ids == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestDecodeSnapshot_Malformed(t *testing.T) {
	for _, payload := range []string{`{`, `{"id":"m1"}`, `[{"text":"no id"}]`, `"str"`} {
		_, err := DecodeSnapshot([]byte(payload))
		require.Error(t, err, payload)
		assert.True(t, IsDecodeError(err), payload)
	}
}
