package iters

import (
	"errors"
	"testing"
)

func TestSliceIterator_Drain(t *testing.T) {
	it := FromSlice([]int{1, 2, 3})

	got, err := Collect[int](it)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Expected [1 2 3], got %v", got)
	}
}

func TestSliceIterator_Empty(t *testing.T) {
	it := FromSlice[string](nil)
	if _, err := it.Next(); !errors.Is(err, Done) {
		t.Errorf("Empty iterator should be Done immediately, got %v", err)
	}
}

// TestSliceIterator_PostTerminal checks that every pull after
// exhaustion keeps returning Done.
func TestSliceIterator_PostTerminal(t *testing.T) {
	it := FromSlice([]int{1})
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := it.Next(); !errors.Is(err, Done) {
			t.Errorf("Pull %d after exhaustion: expected Done, got %v", i, err)
		}
	}
}

func TestSliceIterator_CloseIsTerminal(t *testing.T) {
	it := FromSlice([]int{1, 2})
	if err := it.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Errorf("Close should be idempotent: %v", err)
	}
	if _, err := it.Next(); !errors.Is(err, Done) {
		t.Errorf("Next after Close should return Done, got %v", err)
	}
}
