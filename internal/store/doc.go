// Package store provides SQLite-backed durable storage for the tip
// collection.
//
// The store holds a single versioned document: a version string plus one
// JSON record per tip. Save replaces the whole document in one transaction,
// so a crash mid-save leaves the previous document intact.
//
// A document written under a different version string is never migrated.
// Load reports ErrVersionMismatch and hands back the stale tip ids so the
// caller can re-import them from the notification inbox.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
