// Package engine implements the chat sync session.
//
// A Session connects one client to the live and snapshot channels, loads
// history, then keeps a local log in step with every peer by exchanging
// actions.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The session processes all inputs in a single goroutine. Transport
// callbacks, bootstrap timers, snapshot fetches and local commands are all
// enqueued as events and applied one at a time. This ensures:
//   - the log has exactly one writer
//   - bootstrap races resolve in enqueue order
//   - local actions are applied before they are published
//
// Event Processing Flow:
//  1. Callbacks and commands enqueue events (never block)
//  2. Session.Run dequeues events one at a time
//  3. process routes each event to its handler
//  4. Handlers run the reducer, publish the read view, and schedule
//     persistence
//
// Publishing happens on a separate outbox goroutine so the loop never waits
// on broker acknowledgements. Persistence writes happen on the scheduler's
// goroutine with the log captured when the write was scheduled.
//
// Lifecycle:
//
//	Connecting -> Connected -> (Reconnecting -> Connected)* -> Disconnected
//
// Bootstrap runs once, on the first connect: subscribe to the snapshot
// channel (or fetch from a SnapshotSource), arm the timer, and go Live on
// whichever completes first. Only then is the live channel subscribed.
//
// Sequence numbers, not wall-clock time, order events.
package engine
