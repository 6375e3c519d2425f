package version

import "fmt"

// Version identifies one accepted write of a key. Two Versions are compared
// with Wins to decide which write survives; the Tombstone flag records
// whether the write was a deletion but never influences the ordering.
type Version struct {
	Timestamp int64
	NodeID    string
	Tombstone bool
}

// Zero is the lowest possible rank. It loses to every real Version and is
// used as the incumbent for keys never seen before.
var Zero = Version{}

// IsZero reports whether v carries no provenance at all.
func (v Version) IsZero() bool {
	return v.Timestamp == 0 && v.NodeID == ""
}

// String returns a compact representation for logs.
func (v Version) String() string {
	if v.Tombstone {
		return fmt.Sprintf("%d@%s(dead)", v.Timestamp, v.NodeID)
	}
	return fmt.Sprintf("%d@%s", v.Timestamp, v.NodeID)
}

// Wins reports whether candidate outranks incumbent:
//
//  1. Higher Timestamp wins outright.
//  2. On equal Timestamp, the lexicographically greater NodeID wins.
//  3. Equal (Timestamp, NodeID) is not a win, so re-applying the same
//     version is a no-op.
//
// The function is pure and deterministic: any permutation of operations
// applied through it converges to the same final Version per key.
func Wins(candidate, incumbent Version) bool {
	if candidate.Timestamp != incumbent.Timestamp {
		return candidate.Timestamp > incumbent.Timestamp
	}
	return candidate.NodeID > incumbent.NodeID
}
