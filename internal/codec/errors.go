package codec

import (
	"errors"
	"fmt"

	"github.com/roach88/chatsync/internal/chat"
)

// ErrNotPublishable is returned when encoding an action that must stay
// local: error diagnostics and NoOp actions.
var ErrNotPublishable = errors.New("action is not publishable")

// DecodeError reports a malformed or unparseable payload. It is never
// fatal: callers discard the payload and log the fault.
type DecodeError struct {
	// Type is the envelope tag, when one could be read.
	Type chat.ActionType

	// Reason is a human-readable description.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	msg := "decode"
	if e.Type != "" {
		msg = fmt.Sprintf("decode %s", e.Type)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
