package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by local actions once the session has stopped.
	ErrStopped = errors.New("session stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("session already running")
)

// SyncError represents an error detected while synchronizing.
//
// Sync errors are never fatal to the process:
//   - Decode: malformed live or snapshot payload, discarded
//   - Transport: connection or subscription failure, session closes
//   - Persistence: snapshot write failed, retried by the next debounce
//   - StaleSnapshot: snapshot arrived after bootstrap completed, ignored
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// Topic is the channel involved, if any.
	Topic string

	// Err is the underlying error.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	ErrCodeDecode        SyncErrorCode = "DECODE_ERROR"
	ErrCodeTransport     SyncErrorCode = "TRANSPORT_ERROR"
	ErrCodePersistence   SyncErrorCode = "PERSISTENCE_ERROR"
	ErrCodeStaleSnapshot SyncErrorCode = "STALE_SNAPSHOT"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Topic != "" {
		msg = fmt.Sprintf("%s (topic=%s)", msg, e.Topic)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsDecodeError returns true if err is a decode SyncError.
// Uses errors.As to handle wrapped errors.
func IsDecodeError(err error) bool { return hasCode(err, ErrCodeDecode) }

// IsTransportError returns true if err is a transport SyncError.
func IsTransportError(err error) bool { return hasCode(err, ErrCodeTransport) }

// IsPersistenceError returns true if err is a persistence SyncError.
func IsPersistenceError(err error) bool { return hasCode(err, ErrCodePersistence) }

// IsStaleSnapshot returns true if err reports an ignored late snapshot.
func IsStaleSnapshot(err error) bool { return hasCode(err, ErrCodeStaleSnapshot) }

// NewDecodeError creates a SyncError for a payload that failed to decode.
func NewDecodeError(topic string, err error) *SyncError {
	return &SyncError{Code: ErrCodeDecode, Message: "payload discarded", Topic: topic, Err: err}
}

// NewTransportError creates a SyncError for a failed transport operation.
func NewTransportError(op, topic string, err error) *SyncError {
	return &SyncError{Code: ErrCodeTransport, Message: op + " failed", Topic: topic, Err: err}
}

// NewPersistenceError creates a SyncError for a failed snapshot write.
func NewPersistenceError(err error) *SyncError {
	return &SyncError{Code: ErrCodePersistence, Message: "snapshot write failed", Err: err}
}

// NewStaleSnapshotError creates a SyncError for a snapshot that lost the
// bootstrap race.
func NewStaleSnapshotError(topic string) *SyncError {
	return &SyncError{Code: ErrCodeStaleSnapshot, Message: "snapshot arrived after bootstrap", Topic: topic}
}
