// Package engine implements the tipsync reconciliation loop.
//
// The engine owns the tip collection and drives every component that
// mutates it: the inbox digester, the blockchain watcher and autopay.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// All tip mutations happen on the goroutine running Run (or Cycle). Chain
// subscription callbacks and admin requests arrive on other goroutines;
// they only enqueue events, which the loop drains at the start of each
// cycle.
//
// Cycle:
//  1. Drain queued events (chain notifications, admin commands)
//  2. Restore the persisted collection (first cycle only)
//  3. Poll unread inbox items and digest each
//  4. Resolve pending amounts in one bounded comment fetch
//  5. Flush the watcher: subscriptions, then dirty address histories
//  6. Advance amount-pending tips whose grace period elapsed
//  7. Autopay tick
//  8. Mark digested items read
//  9. Persist if anything changed
//
// Grace periods and the autopay wait are re-checked against the wall clock
// on every cycle rather than scheduled as timers.
//
// ERROR HANDLING:
// Authentication failures stop Run. Every other failure is logged and the
// cycle is retried after a backoff.
package engine
