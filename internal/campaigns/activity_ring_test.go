package campaigns

import (
	"fmt"
	"testing"
)

func TestActivityRingEvictsOldestFirst(t *testing.T) {
	ring := newActivityRing(3)

	for index := 1; index <= 5; index++ {
		ring.push(Activity{ID: fmt.Sprintf("a%d", index)})
	}

	entries := ring.newestFirst()
	if len(entries) != 3 {
		t.Fatalf("expected ring to hold 3 entries, got %d", len(entries))
	}
	expected := []string{"a5", "a4", "a3"}
	for index, id := range expected {
		if entries[index].ID != id {
			t.Fatalf("expected %s at index %d, got %s", id, index, entries[index].ID)
		}
	}
}

func TestActivityRingPartiallyFilled(t *testing.T) {
	ring := newActivityRing(4)
	ring.push(Activity{ID: "a1"})
	ring.push(Activity{ID: "a2"})

	entries := ring.newestFirst()
	if len(entries) != 2 || entries[0].ID != "a2" || entries[1].ID != "a1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	entries[0].ID = "mutated"
	if ring.newestFirst()[0].ID != "a2" {
		t.Fatalf("newestFirst must return a copy")
	}
}

func TestNewMemoryRepositoryRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewMemoryRepository(capacity); err != ErrInvalidCapacity {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", capacity, err)
		}
	}
}
