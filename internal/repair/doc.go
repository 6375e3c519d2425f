// Package repair provides the anti-entropy reconciler. On a fixed
// interval it diffs the full key sets of the local site and each peer
// site, compares the versions reconstructed from stored provenance, and
// pushes winners to whichever side lacks them. This repairs divergence
// caused by transport gaps without replaying any operation history.
package repair
