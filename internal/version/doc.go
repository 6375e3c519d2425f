// Package version provides last-writer-wins conflict resolution for
// replicated key-value entries. A Version is the comparable (timestamp,
// node, tombstone) tuple derived from an operation or from stored
// provenance; Wins defines the total order that makes applying operations
// commutative, associative and idempotent. The Store tracks the
// highest-ranked Version accepted per key and offers an atomic
// compare-and-commit so concurrent appliers never install a loser.
package version
