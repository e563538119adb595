// Package codec converts chat actions and snapshots to and from their
// transport payloads.
//
// Live channel payloads are JSON envelopes:
//
//	{"type":"new_message","payload":{"id":"m1","text":"hi","senderId":"A"}}
//	{"type":"delete_message","payload":{"messageId":"m1"}}
//	{"type":"toggle_reaction","payload":{"messageId":"m1","emoji":"👍","senderId":"A"}}
//	{"type":"clear_all_history"}
//
// Snapshot payloads are a JSON array of messages. An explicitly empty
// payload is the reserved "history cleared" sentinel on both channels and
// is never a decode failure. Unknown action tags decode to chat.NoOp so
// that newer peers cannot crash older ones.
package codec
