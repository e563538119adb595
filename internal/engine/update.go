package engine

import "github.com/roach88/chatsync/internal/chat"

// Origin says where an applied action came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// UpdateKind classifies an Update.
type UpdateKind string

const (
	UpdateBootstrap UpdateKind = "bootstrap"
	UpdateAction    UpdateKind = "action"
	UpdateStatus    UpdateKind = "status"
)

// Update is delivered to observers after each visible state change.
type Update struct {
	// Seq is the sequence number of the event that caused the change.
	Seq int64

	Kind UpdateKind

	// Action and Origin are set for UpdateAction.
	Action chat.Action
	Origin Origin

	// Status is the connection status after the change.
	Status Status

	// Messages is the log length after the change.
	Messages int
}
