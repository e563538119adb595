// Package policy holds the local rules for user actions.
//
// The reducer applies whatever arrives from peers. These checks run only
// on actions originating in this session, before they are applied and
// published.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/chatsync/internal/bootstrap"
	"github.com/roach88/chatsync/internal/chat"
)

var (
	// ErrBootstrapping rejects local actions before history has loaded.
	ErrBootstrapping = errors.New("history is still loading")

	// ErrEmptyText rejects a message that is blank after trimming.
	ErrEmptyText = errors.New("message text is empty")

	// ErrNotOwner rejects deleting another actor's message.
	ErrNotOwner = errors.New("only the sender can delete a message")

	// ErrUnknownMessage rejects an action on an id not in the log.
	ErrUnknownMessage = errors.New("message not found")

	// ErrNoActor rejects actions from a session without an identity.
	ErrNoActor = errors.New("actor id is required")

	// ErrEmptyEmoji rejects a reaction with no emoji.
	ErrEmptyEmoji = errors.New("emoji is required")
)

// CheckReady rejects local actions until bootstrap is Live.
func CheckReady(phase bootstrap.Phase) error {
	if phase != bootstrap.Live {
		return ErrBootstrapping
	}
	return nil
}

// CheckSend validates a new message. A reply reference must point at a
// message currently in the log.
func CheckSend(l chat.Log, actor, text, replyTo string) error {
	if actor == "" {
		return ErrNoActor
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if replyTo != "" && !l.Contains(replyTo) {
		return fmt.Errorf("reply to %s: %w", replyTo, ErrUnknownMessage)
	}
	return nil
}

// CheckDelete allows a delete only by the message's sender.
func CheckDelete(l chat.Log, actor, id string) error {
	if actor == "" {
		return ErrNoActor
	}
	m, ok := l.Get(id)
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrUnknownMessage)
	}
	if m.SenderID != actor {
		return fmt.Errorf("delete %s: %w", id, ErrNotOwner)
	}
	return nil
}

// CheckReact allows any actor to toggle a reaction on any message in the
// log.
func CheckReact(l chat.Log, actor, id, emoji string) error {
	if actor == "" {
		return ErrNoActor
	}
	if chat.NormalizeEmoji(emoji) == "" {
		return ErrEmptyEmoji
	}
	if !l.Contains(id) {
		return fmt.Errorf("react to %s: %w", id, ErrUnknownMessage)
	}
	return nil
}

// CheckClear allows any identified actor to clear the shared history.
func CheckClear(actor string) error {
	if actor == "" {
		return ErrNoActor
	}
	return nil
}
