// Package reducer applies actions to a chat log.
//
// Apply is pure: it never mutates its input, never rejects an action and
// never performs I/O. Authorization of local actions is the job of the
// policy package; remote deletes and toggles are applied unconditionally.
package reducer

import "github.com/roach88/chatsync/internal/chat"

// Apply returns the log that results from applying a to l.
//
// self is the local actor id. None of the built-in rules depend on it;
// echo suppression happens before Apply is called.
//
//   - NewMessage: append; a message whose id is already present is ignored
//   - DeleteMessage: remove; absent id is a no-op
//   - ToggleReaction: flip actor membership; absent message is a no-op
//   - ClearAllHistory, Cleared: empty log
//   - NoOp: unchanged
func Apply(l chat.Log, a chat.Action, self string) chat.Log {
	switch a := a.(type) {
	case chat.NewMessage:
		if a.Message.ID == "" {
			return l
		}
		return l.Append(a.Message)

	case chat.DeleteMessage:
		return l.Remove(a.MessageID)

	case chat.ToggleReaction:
		if !l.Contains(a.MessageID) || a.ActorID == "" {
			return l
		}
		emoji := chat.NormalizeEmoji(a.Emoji)
		if emoji == "" {
			return l
		}
		return l.Update(a.MessageID, func(m chat.Message) chat.Message {
			m.Reactions = m.Reactions.Toggle(emoji, a.ActorID)
			return m
		})

	case chat.ClearAllHistory, chat.Cleared:
		return chat.NewLog()

	default:
		return l
	}
}

// ApplyAll folds actions over l in order.
func ApplyAll(l chat.Log, self string, actions ...chat.Action) chat.Log {
	for _, a := range actions {
		l = Apply(l, a, self)
	}
	return l
}

// Changed reports whether applying a to l would alter it. The session uses
// it to skip persistence for actions that leave the log untouched.
func Changed(l chat.Log, a chat.Action) bool {
	switch a := a.(type) {
	case chat.NewMessage:
		return a.Message.ID != "" && !l.Contains(a.Message.ID)
	case chat.DeleteMessage:
		return l.Contains(a.MessageID)
	case chat.ToggleReaction:
		return l.Contains(a.MessageID) && a.ActorID != "" && chat.NormalizeEmoji(a.Emoji) != ""
	case chat.ClearAllHistory, chat.Cleared:
		return l.Len() > 0
	default:
		return false
	}
}
