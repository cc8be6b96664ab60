package idgen

import (
	"sync"
	"testing"

	"pgregory.net/rapid"
)

func TestSequenceFormat(t *testing.T) {
	s := NewSequence("INT")

	if got := s.Next(); got != "INT-000001" {
		t.Errorf("expected INT-000001, got %s", got)
	}
	if got := s.Next(); got != "INT-000002" {
		t.Errorf("expected INT-000002, got %s", got)
	}
}

func TestSequenceRestore(t *testing.T) {
	s := NewSequence("REV")
	s.Restore(41)

	if got := s.Next(); got != "REV-000042" {
		t.Errorf("expected REV-000042, got %s", got)
	}

	// Restore never moves the counter backwards
	s.Restore(3)
	if got := s.Next(); got != "REV-000043" {
		t.Errorf("expected REV-000043, got %s", got)
	}
}

func TestParse(t *testing.T) {
	n, ok := Parse("INT", "INT-000123")
	if !ok || n != 123 {
		t.Errorf("expected (123, true), got (%d, %v)", n, ok)
	}

	if _, ok := Parse("INT", "REV-000123"); ok {
		t.Error("expected mismatch for wrong prefix")
	}
	if _, ok := Parse("INT", "INT-12"); ok {
		t.Error("expected mismatch for short id")
	}
}

// Concurrent allocations must yield pairwise distinct, contiguous ids.
func TestSequenceUniquenessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 200).Draw(t, "n")
		s := NewSequence("INT")

		var wg sync.WaitGroup
		ids := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids <- s.Next()
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[string]bool, n)
		for id := range ids {
			if seen[id] {
				t.Fatalf("duplicate id %s", id)
			}
			seen[id] = true
		}
		if len(seen) != n {
			t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
		}
		// Contiguous from the last issued id
		if s.Current() != uint64(n) {
			t.Fatalf("expected counter %d, got %d", n, s.Current())
		}
	})
}
