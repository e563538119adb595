package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/engine"
)

// lockedWriter serializes writes from the session observer and the input
// loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// renderMessage writes one log entry:
//
//	[id] sender: text
//	    > quoted text
//	    👍 alice, bob
func renderMessage(w io.Writer, m chat.Message, self string) {
	sender := m.SenderID
	if sender == self {
		sender = "you"
	}
	prefix := ""
	if m.IsError {
		prefix = "! "
	}
	fmt.Fprintf(w, "%s[%s] %s: %s\n", prefix, m.ID, sender, m.Text)
	if m.ReplyTo != nil {
		fmt.Fprintf(w, "    > %s\n", m.ReplyTo.Text)
	}
	emojis := make([]string, 0, len(m.Reactions))
	for emoji := range m.Reactions {
		emojis = append(emojis, emoji)
	}
	slices.Sort(emojis)
	for _, emoji := range emojis {
		actors := m.Reactions.Reactors(emoji)
		if len(actors) == 0 {
			continue
		}
		fmt.Fprintf(w, "    %s %s\n", emoji, strings.Join(actors, ", "))
	}
}

func renderLog(w io.Writer, msgs []chat.Message, self string) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		renderMessage(w, m, self)
	}
}

// renderRemote writes a peer's action as it arrives.
func renderRemote(w io.Writer, a chat.Action, self string) {
	switch a := a.(type) {
	case chat.NewMessage:
		renderMessage(w, a.Message, self)
	case chat.DeleteMessage:
		fmt.Fprintf(w, "* message %s was deleted\n", a.MessageID)
	case chat.ToggleReaction:
		fmt.Fprintf(w, "* %s toggled %s on %s\n", a.ActorID, a.Emoji, a.MessageID)
	case chat.ClearAllHistory, chat.Cleared:
		fmt.Fprintln(w, "* history was cleared")
	}
}

func renderStatus(w io.Writer, st engine.Status) {
	fmt.Fprintf(w, "* %s\n", st)
}
