package chat

// ActionType is the wire tag of an action.
type ActionType string

const (
	ActionNewMessage      ActionType = "new_message"
	ActionDeleteMessage   ActionType = "delete_message"
	ActionToggleReaction  ActionType = "toggle_reaction"
	ActionClearAllHistory ActionType = "clear_all_history"
)

// KnownActionTypes lists the tags this build understands, in wire order.
var KnownActionTypes = []ActionType{
	ActionNewMessage,
	ActionDeleteMessage,
	ActionToggleReaction,
	ActionClearAllHistory,
}

// Action is a closed set of log mutations. Every local mutation is exactly
// one Action so that peers can replay it.
//
// The set is sealed by an unexported method; the variants are NewMessage,
// DeleteMessage, ToggleReaction, ClearAllHistory, Cleared and NoOp.
type Action interface {
	// Type returns the wire tag. Cleared has no tag; NoOp reports the
	// unrecognized tag it was decoded from.
	Type() ActionType
	isAction()
}

// NewMessage appends a message to the log.
type NewMessage struct {
	Message Message
}

// DeleteMessage removes the message with the given id.
type DeleteMessage struct {
	MessageID string
}

// ToggleReaction flips ActorID's membership for Emoji on a message.
type ToggleReaction struct {
	MessageID string
	Emoji     string
	ActorID   string
}

// ClearAllHistory empties the log.
type ClearAllHistory struct{}

// Cleared is the sentinel decoded from an explicitly empty payload: the
// snapshot has been cleared. It is not a decode failure.
type Cleared struct{}

// NoOp is an action with a tag this build does not understand. Peers
// running newer code may publish such actions; they pass through.
type NoOp struct {
	Tag ActionType
}

func (NewMessage) Type() ActionType      { return ActionNewMessage }
func (DeleteMessage) Type() ActionType   { return ActionDeleteMessage }
func (ToggleReaction) Type() ActionType  { return ActionToggleReaction }
func (ClearAllHistory) Type() ActionType { return ActionClearAllHistory }
func (Cleared) Type() ActionType         { return "" }
func (a NoOp) Type() ActionType          { return a.Tag }

func (NewMessage) isAction()      {}
func (DeleteMessage) isAction()   {}
func (ToggleReaction) isAction()  {}
func (ClearAllHistory) isAction() {}
func (Cleared) isAction()         {}
func (NoOp) isAction()            {}

// Label returns a short name for logs and metric labels.
func Label(a Action) string {
	switch a := a.(type) {
	case Cleared:
		return "cleared"
	case NoOp:
		return "noop"
	case nil:
		return "nil"
	default:
		return string(a.Type())
	}
}
