package engine

import (
	"sync"
	"sync/atomic"
)

// eventKind distinguishes between event kinds.
type eventKind int

const (
	evConnected eventKind = iota + 1
	evReconnecting
	evDisconnected
	evTransportError
	evMessage
	evBootstrapTimeout
	evSnapshotFetched
	evPublishFailed
	evCommand
)

func (k eventKind) String() string {
	switch k {
	case evConnected:
		return "connected"
	case evReconnecting:
		return "reconnecting"
	case evDisconnected:
		return "disconnected"
	case evTransportError:
		return "transport_error"
	case evMessage:
		return "message"
	case evBootstrapTimeout:
		return "bootstrap_timeout"
	case evSnapshotFetched:
		return "snapshot_fetched"
	case evPublishFailed:
		return "publish_failed"
	case evCommand:
		return "command"
	default:
		return "unknown"
	}
}

// event is one input to the session loop: a transport callback, a timer,
// or a local command.
type event struct {
	kind eventKind

	// seq is stamped on enqueue and is strictly increasing per session.
	seq int64

	topic   string
	payload []byte
	err     error
	cmd     *command
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that transport callbacks never block on a busy
// session loop.
//
// Every event is stamped with a logical sequence number at enqueue time.
// Sequence numbers, not wall-clock time, order the session's inputs.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	seq atomic.Int64

	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue stamps e and adds it to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	e.seq = q.seq.Add(1)
	q.events = append(q.events, e)

	// buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the payload and command can be collected.
	q.events[0] = event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Seq returns the last stamped sequence number.
func (q *eventQueue) Seq() int64 {
	return q.seq.Load()
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
