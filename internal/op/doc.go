// Package op defines the replicated operation type and its wire codec.
// An Operation is an immutable intent to mutate one key; it is created for
// each local event, broadcast to peers, and discarded once applied.
package op
