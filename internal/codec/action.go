package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/chatsync/internal/chat"
)

// envelope is the live channel wire shape.
type envelope struct {
	Type    chat.ActionType `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type deletePayload struct {
	MessageID string `json:"messageId"`
}

type reactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	SenderID  string `json:"senderId"`
}

// Encode serializes an action to a live channel payload.
//
// chat.Cleared encodes to the empty sentinel. chat.NoOp and messages
// flagged as errors cannot be encoded.
func Encode(a chat.Action) ([]byte, error) {
	var payload any

	switch a := a.(type) {
	case chat.NewMessage:
		if a.Message.ID == "" {
			return nil, fmt.Errorf("encode %s: message id is required", a.Type())
		}
		if a.Message.IsError {
			return nil, fmt.Errorf("encode %s: error message %s: %w", a.Type(), a.Message.ID, ErrNotPublishable)
		}
		m := a.Message.Clone()
		m.Reactions = normalizeReactions(m.Reactions)
		payload = m

	case chat.DeleteMessage:
		if a.MessageID == "" {
			return nil, fmt.Errorf("encode %s: message id is required", a.Type())
		}
		payload = deletePayload{MessageID: a.MessageID}

	case chat.ToggleReaction:
		if a.MessageID == "" || a.ActorID == "" || chat.NormalizeEmoji(a.Emoji) == "" {
			return nil, fmt.Errorf("encode %s: message id, emoji and actor are required", a.Type())
		}
		payload = reactionPayload{
			MessageID: a.MessageID,
			Emoji:     chat.NormalizeEmoji(a.Emoji),
			SenderID:  a.ActorID,
		}

	case chat.ClearAllHistory:
		return marshal(envelope{Type: chat.ActionClearAllHistory})

	case chat.Cleared:
		return []byte{}, nil

	case chat.NoOp:
		return nil, fmt.Errorf("encode unknown action %q: %w", a.Tag, ErrNotPublishable)

	default:
		return nil, fmt.Errorf("encode: unsupported action %T", a)
	}

	raw, err := marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Type(), err)
	}
	return marshal(envelope{Type: a.Type(), Payload: raw})
}

// Decode parses a live channel payload. It is total: every input yields
// either an action or a *DecodeError.
//
//   - empty payload: chat.Cleared
//   - unknown tag:   chat.NoOp
func Decode(data []byte) (chat.Action, error) {
	if len(data) == 0 {
		return chat.Cleared{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid envelope", Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing type"}
	}

	switch env.Type {
	case chat.ActionNewMessage:
		var m chat.Message
		if err := unmarshalPayload(env, &m); err != nil {
			return nil, err
		}
		if m.ID == "" || m.SenderID == "" {
			return nil, &DecodeError{Type: env.Type, Reason: "message id and senderId are required"}
		}
		// Diagnostics never travel; a remote copy is a plain message.
		m.IsError = false
		m.Reactions = normalizeReactions(m.Reactions)
		return chat.NewMessage{Message: m}, nil

	case chat.ActionDeleteMessage:
		var p deletePayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, &DecodeError{Type: env.Type, Reason: "messageId is required"}
		}
		return chat.DeleteMessage{MessageID: p.MessageID}, nil

	case chat.ActionToggleReaction:
		var p reactionPayload
		if err := unmarshalPayload(env, &p); err != nil {
			return nil, err
		}
		emoji := chat.NormalizeEmoji(p.Emoji)
		if p.MessageID == "" || emoji == "" || p.SenderID == "" {
			return nil, &DecodeError{Type: env.Type, Reason: "messageId, emoji and senderId are required"}
		}
		return chat.ToggleReaction{MessageID: p.MessageID, Emoji: emoji, ActorID: p.SenderID}, nil

	case chat.ActionClearAllHistory:
		return chat.ClearAllHistory{}, nil

	default:
		return chat.NoOp{Tag: env.Type}, nil
	}
}

func unmarshalPayload(env envelope, v any) error {
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return &DecodeError{Type: env.Type, Reason: "missing payload"}
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return &DecodeError{Type: env.Type, Reason: "invalid payload", Err: err}
	}
	return nil
}

// normalizeReactions re-keys reactions by normalized emoji, merging keys
// that collapse to the same form and dropping empty sets.
func normalizeReactions(r chat.Reactions) chat.Reactions {
	if len(r) == 0 {
		return nil
	}
	out := make(chat.Reactions, len(r))
	for emoji, reactors := range r {
		key := chat.NormalizeEmoji(emoji)
		if key == "" {
			continue
		}
		for _, actor := range reactors {
			if !out.Has(key, actor) {
				out[key] = append(out[key], actor)
			}
		}
	}
	return out.Clone()
}

// marshal encodes v as compact JSON without HTML escaping, matching what
// browser peers produce.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
