package version

import (
	"errors"
	"sync"
	"testing"
)

func TestStore_GetAbsent(t *testing.T) {
	s := NewStore()

	v, ok := s.Get("config", "x")
	if ok {
		t.Error("Expected no version for an unseen key")
	}
	if !v.IsZero() {
		t.Errorf("Expected zero version, got %v", v)
	}
}

func TestStore_CommitInstallsWinner(t *testing.T) {
	s := NewStore()

	won, err := s.Commit("config", "x", Version{Timestamp: 3, NodeID: "A"}, nil)
	if err != nil || !won {
		t.Fatalf("Expected first commit to win, got won=%v err=%v", won, err)
	}

	// A lower-ranked candidate must be rejected.
	won, err = s.Commit("config", "x", Version{Timestamp: 2, NodeID: "Z"}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if won {
		t.Error("Expected lower-ranked candidate to lose")
	}

	v, ok := s.Get("config", "x")
	if !ok || v.Timestamp != 3 || v.NodeID != "A" {
		t.Errorf("Expected stored version 3@A, got %v (ok=%v)", v, ok)
	}
}

func TestStore_CommitIdempotent(t *testing.T) {
	s := NewStore()
	v := Version{Timestamp: 7, NodeID: "n1"}

	if won, _ := s.Commit("b", "k", v, nil); !won {
		t.Fatal("Expected first commit to win")
	}
	if won, _ := s.Commit("b", "k", v, nil); won {
		t.Error("Expected re-commit of the same version to be a no-op")
	}
}

func TestStore_CommitApplyFailureKeepsIncumbent(t *testing.T) {
	s := NewStore()

	if won, _ := s.Commit("b", "k", Version{Timestamp: 1, NodeID: "A"}, nil); !won {
		t.Fatal("Expected seed commit to win")
	}

	applyErr := errors.New("storage unavailable")
	won, err := s.Commit("b", "k", Version{Timestamp: 2, NodeID: "A"}, func() error {
		return applyErr
	})
	if won {
		t.Error("Expected failed apply not to install the candidate")
	}
	if !errors.Is(err, applyErr) {
		t.Errorf("Expected apply error to surface, got %v", err)
	}

	v, _ := s.Get("b", "k")
	if v.Timestamp != 1 {
		t.Errorf("Expected incumbent 1@A to survive, got %v", v)
	}
}

func TestStore_BucketsAreIndependent(t *testing.T) {
	s := NewStore()

	s.Commit("b1", "k", Version{Timestamp: 5, NodeID: "A"}, nil)
	s.Commit("b2", "k", Version{Timestamp: 9, NodeID: "B"}, nil)

	v1, _ := s.Get("b1", "k")
	v2, _ := s.Get("b2", "k")
	if v1.Timestamp != 5 || v2.Timestamp != 9 {
		t.Errorf("Expected per-bucket versions 5 and 9, got %v and %v", v1, v2)
	}
}

// TestStore_ConcurrentCommitsNeverKeepLoser races many committers for one
// key and checks the store ends on the highest-ranked version.
func TestStore_ConcurrentCommitsNeverKeepLoser(t *testing.T) {
	s := NewStore()

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(node byte) {
			defer wg.Done()
			for i := 1; i <= perWriter; i++ {
				v := Version{Timestamp: int64(i), NodeID: string('a' + node)}
				if _, err := s.Commit("b", "hot", v, nil); err != nil {
					t.Errorf("Unexpected commit error: %v", err)
				}
			}
		}(byte(w))
	}
	wg.Wait()

	want := Version{Timestamp: perWriter, NodeID: string('a' + byte(writers-1))}
	got, ok := s.Get("b", "hot")
	if !ok || got != want {
		t.Errorf("Expected final version %v, got %v (ok=%v)", want, got, ok)
	}
}
