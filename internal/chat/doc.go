// Package chat provides the data model shared by every chatsync package.
//
// This package contains the message log, the action variants and a few
// value helpers. All other internal packages import chat; chat imports
// nothing internal, so the model stays the foundational layer.
//
// Key constraints:
//   - Message ids are immutable and unique (caller generated)
//   - A reactions entry with an empty reactor set never exists
//   - Log order is local arrival order, never a timestamp
//   - Log values are immutable: every mutation returns a new Log
package chat
