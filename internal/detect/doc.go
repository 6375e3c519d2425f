// Package detect watches the local store for changes and decides which of
// them are genuinely new local edits. Writes already carrying agent
// provenance are only observed, never re-broadcast, which is what keeps
// replication loops from forming; provenance-less writes are stamped,
// versioned and broadcast as fresh operations. The package also exposes
// LocalPut and LocalDelete, the sanctioned in-process write path.
package detect
