package chat

import "slices"

// Log is the ordered, id-indexed message log.
//
// Order is local arrival order. A Log value is never mutated in place:
// Append, Remove and Update return a new Log and leave the receiver
// untouched, which keeps the reducer pure.
//
// INVARIANTS:
//   - index[msgs[i].ID] == i for every i
//   - ids are unique
type Log struct {
	msgs  []Message
	index map[string]int
}

// NewLog builds a log from msgs in order. When an id repeats, the first
// occurrence wins.
func NewLog(msgs ...Message) Log {
	l := Log{
		msgs:  make([]Message, 0, len(msgs)),
		index: make(map[string]int, len(msgs)),
	}
	for _, m := range msgs {
		if _, dup := l.index[m.ID]; dup {
			continue
		}
		l.index[m.ID] = len(l.msgs)
		l.msgs = append(l.msgs, m.Clone())
	}
	return l
}

// Len returns the number of messages.
func (l Log) Len() int {
	return len(l.msgs)
}

// Contains reports whether a message with id is present.
func (l Log) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Get returns a copy of the message with id.
func (l Log) Get(id string) (Message, bool) {
	i, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.msgs[i].Clone(), true
}

// Messages returns a deep copy of the log in order. Never nil.
func (l Log) Messages() []Message {
	out := make([]Message, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.Clone()
	}
	return out
}

// IDs returns message ids in order.
func (l Log) IDs() []string {
	out := make([]string, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.ID
	}
	return out
}

// Durable returns the messages that belong in a persisted snapshot.
func (l Log) Durable() []Message {
	out := make([]Message, 0, len(l.msgs))
	for _, m := range l.msgs {
		if m.Durable() {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Append returns a log with m added at the end. If the id is already
// present the receiver is returned unchanged: message bodies are
// immutable, so a repeated insert carries nothing new.
func (l Log) Append(m Message) Log {
	if l.Contains(m.ID) {
		return l
	}
	out := l.clone(len(l.msgs) + 1)
	out.index[m.ID] = len(out.msgs)
	out.msgs = append(out.msgs, m.Clone())
	return out
}

// Remove returns a log without the message id. Removing an absent id
// returns the receiver unchanged.
func (l Log) Remove(id string) Log {
	i, ok := l.index[id]
	if !ok {
		return l
	}
	msgs := slices.Concat(l.msgs[:i:i], l.msgs[i+1:])
	out := Log{msgs: msgs, index: make(map[string]int, len(msgs))}
	for j, m := range out.msgs {
		out.index[m.ID] = j
	}
	return out
}

// Update returns a log where the message id is replaced by fn's result.
// fn receives a private copy. The id may not change. Updating an absent id
// returns the receiver unchanged.
func (l Log) Update(id string, fn func(Message) Message) Log {
	i, ok := l.index[id]
	if !ok {
		return l
	}
	next := fn(l.msgs[i].Clone())
	next.ID = id
	out := l.clone(len(l.msgs))
	out.msgs[i] = next
	return out
}

// clone copies the backing slice and index; message values are shared
// because they are never mutated in place.
func (l Log) clone(capacity int) Log {
	out := Log{
		msgs:  make([]Message, len(l.msgs), capacity),
		index: make(map[string]int, capacity),
	}
	copy(out.msgs, l.msgs)
	for id, i := range l.index {
		out.index[id] = i
	}
	return out
}
