// Package store is a SQLite-backed local content backend.
//
// It stands in for the remote content API during development and in the
// CLI: entities live in one table, and every successful lifecycle call is
// appended to a transition log. The Backend type implements
// entitystate.ResourceClient with the same rules the remote API enforces:
//   - every write names the version it was based on (optimistic locking)
//   - archive and delete are accepted on drafts only
//   - publish is refused on archived entities
//   - a deleted entity is a tombstone; every later call is NotFound
//
// # Transition log
//
//   - Ordering uses seq INTEGER (logical clock), never timestamps
//   - Record ids are content-addressed via ir.TransitionID
//   - The resulting sys is kept as a deterministic CBOR snapshot
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
