package chat

// SystemSender is the sender id of locally synthesized status messages.
// Messages from this sender are displayed but never persisted.
const SystemSender = "system"

// Message is one entry of the chat log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	IsError   bool      `json:"isError,omitempty"`   // local diagnostic, never published
	Reactions Reactions `json:"reactions,omitempty"` // emoji -> reactor ids
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
}

// ReplyRef is a frozen quote of another message, captured when the reply
// was composed. It is not kept in sync with the log: deleting the quoted
// message leaves the reference intact.
type ReplyRef struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SenderID string `json:"senderId"`
}

// QuoteOf captures a reply reference for m.
func QuoteOf(m Message) *ReplyRef {
	return &ReplyRef{ID: m.ID, Text: m.Text, SenderID: m.SenderID}
}

// Durable reports whether m belongs in a persisted snapshot.
// Error diagnostics and system notices are session-local.
func (m Message) Durable() bool {
	return !m.IsError && m.SenderID != SystemSender
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	out.Reactions = m.Reactions.Clone()
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	return out
}
