// Package clock provides a Lamport logical clock for ordering replicated
// operations. Local events draw fresh, strictly increasing timestamps;
// observing a remote timestamp advances the counter so that later local
// events causally follow everything this node has seen.
package clock
