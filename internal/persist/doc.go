// Package persist coalesces log mutations into snapshot writes.
//
// A Debouncer holds the most recent durable view of the log and writes it
// once the log has been quiet for the configured delay. Writes go to a
// Writer: the retained snapshot channel of the broker, or the remote
// history store.
//
// The debouncer starts gated. Nothing is written until Enable is called,
// which the session does when bootstrap reaches Live; writing earlier
// would overwrite the remote snapshot with an incomplete log.
package persist
