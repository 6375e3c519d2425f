package version

import (
	"testing"
)

func TestWins(t *testing.T) {
	tests := []struct {
		name      string
		candidate Version
		incumbent Version
		expected  bool
	}{
		{
			name:      "higher timestamp wins outright",
			candidate: Version{Timestamp: 10, NodeID: "A"},
			incumbent: Version{Timestamp: 9, NodeID: "B"},
			expected:  true,
		},
		{
			name:      "lower timestamp loses regardless of node",
			candidate: Version{Timestamp: 9, NodeID: "Z"},
			incumbent: Version{Timestamp: 10, NodeID: "A"},
			expected:  false,
		},
		{
			name:      "equal timestamp breaks tie on greater node id",
			candidate: Version{Timestamp: 5, NodeID: "b"},
			incumbent: Version{Timestamp: 5, NodeID: "a"},
			expected:  true,
		},
		{
			name:      "equal timestamp with smaller node id loses",
			candidate: Version{Timestamp: 5, NodeID: "a"},
			incumbent: Version{Timestamp: 5, NodeID: "b"},
			expected:  false,
		},
		{
			name:      "identical version is not a win",
			candidate: Version{Timestamp: 5, NodeID: "a"},
			incumbent: Version{Timestamp: 5, NodeID: "a"},
			expected:  false,
		},
		{
			name:      "tombstone status never overrides ordering",
			candidate: Version{Timestamp: 6, NodeID: "A"},
			incumbent: Version{Timestamp: 5, NodeID: "A", Tombstone: true},
			expected:  true,
		},
		{
			name:      "later delete overwrites earlier put",
			candidate: Version{Timestamp: 10, NodeID: "B", Tombstone: true},
			incumbent: Version{Timestamp: 10, NodeID: "A"},
			expected:  true,
		},
		{
			name:      "any real version beats the zero rank",
			candidate: Version{Timestamp: 1, NodeID: "A"},
			incumbent: Zero,
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wins(tt.candidate, tt.incumbent); got != tt.expected {
				t.Errorf("Wins(%v, %v) = %v, expected %v",
					tt.candidate, tt.incumbent, got, tt.expected)
			}
		})
	}
}

func TestWins_Deterministic(t *testing.T) {
	a := Version{Timestamp: 5, NodeID: "a"}
	b := Version{Timestamp: 5, NodeID: "b"}

	for i := 0; i < 100; i++ {
		if !Wins(b, a) {
			t.Fatal("Expected node b to win the tie on every call")
		}
		if Wins(a, b) {
			t.Fatal("Expected node a to lose the tie on every call")
		}
	}
}
