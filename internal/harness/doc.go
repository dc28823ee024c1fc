// Package harness runs tip scenarios through the real reconciliation
// engine.
//
// A scenario scripts what the outside world does (inbox notifications,
// on-chain transactions, the passage of time, operator actions) and when
// the engine runs a cycle. The harness wires the engine to in-memory fakes
// and a manual clock, so every run is deterministic and its final tip table
// can be compared against a golden snapshot.
//
// # Scenario Format
//
//	name: autopay_end_to_end
//	description: "A tip is resolved, paid automatically and confirmed"
//	config:
//	  autopay: true
//	  use_limit: false
//	rates: { EUR: "1000" }
//	comments:
//	  - id: c1
//	    body: "u/chaintip 500 bit"
//	steps:
//	  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 1 }, comment: c1 }
//	  - cycle: 1
//	  - advance: 3s
//	  - cycle: 2
//	expect:
//	  tips:
//	    - id: m1
//	      payment: "paid (1)"
//	  broadcasts: 1
//
// Each step does exactly one thing:
//
//   - inbox: deliver a notification (kinds: tip, claimed, returned, funded,
//     confirmation, other)
//   - chain_tx: mine a transaction
//   - advance: move the clock
//   - cycle: run N engine cycles
//   - set_autopay: toggle autopay
//   - remove: remove a tip
//   - inbox_error: make the next inbox poll fail
//   - restart: rebuild the engine on the same store
//
// Addresses are written as references: {seed: N} is a regular address,
// {seed: N, relay: true} a relay address, and {address: ...} a literal.
// Snapshots show references as addrN and relayN.
package harness
