// Package transport carries encoded operations between sites. The core
// needs only two capabilities: broadcast of operation bytes to every peer,
// and an inbound stream of deliveries with at-least-once, best-effort
// semantics. No ordering or deduplication is promised; the conflict
// resolver makes both harmless.
package transport
