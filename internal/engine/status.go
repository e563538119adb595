package engine

// Status is the connection status shown to the user.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusDisconnected
	StatusError
)

// String returns the display label.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusReconnecting:
		return "Reconnecting..."
	case StatusDisconnected:
		return "Disconnected"
	case StatusError:
		return "Connection Error"
	default:
		return "Unknown"
	}
}

// CanPublish reports whether outbound actions are sent in this status.
func (s Status) CanPublish() bool {
	return s == StatusConnected
}
