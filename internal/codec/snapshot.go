package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/chatsync/internal/chat"
)

// Snapshot is a decoded snapshot payload.
type Snapshot struct {
	Messages []chat.Message

	// Cleared is set when the payload was the explicit empty sentinel.
	Cleared bool
}

// Log builds the initial log from the snapshot.
func (s Snapshot) Log() chat.Log {
	return chat.NewLog(s.Messages...)
}

// EncodeSnapshot serializes messages for the snapshot channel or the
// remote store. An empty list encodes to the empty "cleared" sentinel.
//
// Callers filter non-durable messages first; this function refuses error
// diagnostics rather than silently dropping them.
func EncodeSnapshot(msgs []chat.Message) ([]byte, error) {
	if len(msgs) == 0 {
		return []byte{}, nil
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			return nil, fmt.Errorf("encode snapshot: message %d has no id", i)
		}
		if m.IsError {
			return nil, fmt.Errorf("encode snapshot: message %s: %w", m.ID, ErrNotPublishable)
		}
		out[i] = m.Clone()
		out[i].Reactions = normalizeReactions(out[i].Reactions)
	}
	data, err := marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// EncodeSnapshotArray is EncodeSnapshot for request/response stores, which
// always carry a JSON array: an empty list encodes to "[]".
func EncodeSnapshotArray(msgs []chat.Message) ([]byte, error) {
	if len(msgs) == 0 {
		return []byte("[]"), nil
	}
	return EncodeSnapshot(msgs)
}

// DecodeSnapshot parses a snapshot payload.
//
//   - empty payload: Snapshot{Cleared: true}
//   - JSON null:     empty snapshot
//   - JSON array:    messages in order; every entry needs an id
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{Cleared: true}, nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return Snapshot{}, nil
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return Snapshot{}, &DecodeError{Reason: "invalid snapshot", Err: err}
	}
	for i := range msgs {
		if msgs[i].ID == "" {
			return Snapshot{}, &DecodeError{Reason: fmt.Sprintf("snapshot entry %d has no id", i)}
		}
		msgs[i].IsError = false
		msgs[i].Reactions = normalizeReactions(msgs[i].Reactions)
	}
	return Snapshot{Messages: msgs}, nil
}
