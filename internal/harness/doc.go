// Package harness replays multi-client chat scenarios against real
// sessions on the in-memory broker.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: reply_quotes_text
//	description: "A reply carries a frozen quote of its target"
//	clients: [alice, bob]
//	retained:
//	  - { id: m1, text: welcome, sender: carol }
//	steps:
//	  - { do: send, client: alice, text: hello }
//	  - { do: send, client: bob, text: hi, reply_to: alice-1 }
//	  - { do: advance, duration: 1.5s }
//	assertions:
//	  - type: converged
//	  - { type: message, client: alice, message: bob-1, quote: hello }
//	  - { type: retained, ids: [m1, alice-1, bob-1] }
//
// Message ids are deterministic: a client's n-th message is
// "<client>-<n>".
//
// # Step Kinds
//
//   - join, leave: start a client, or stop it (running the final flush)
//   - send, react, delete, clear: local actions; expect_error asserts the
//     action is refused
//   - interrupt, restore: drop a client's connection and bring it back
//   - advance: move virtual time (persistence delays, timeouts)
//   - bootstrap: advance by the bootstrap timeout
//   - inject: publish a raw payload on the live channel
//
// # Assertion Types
//
//   - log: a client's message ids, in order
//   - converged: clients hold identical logs
//   - reactions: the reactor set of one emoji on one message
//   - message: a message's text and reply quote
//   - retained: the ids in the retained snapshot
//   - status: a client's connection status label
//
// # Deterministic Testing
//
// Sessions share one manual scheduler, so time only passes in advance and
// bootstrap steps. The broker delivers synchronously in client-id order,
// and the harness waits for every session to go quiet after each step.
// Traces are therefore identical across runs and are compared against
// golden files with RunWithGolden.
package harness
