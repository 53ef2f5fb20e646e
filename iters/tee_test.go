package iters

import (
	"errors"
	"testing"
)

func TestTee_BothSidesSeeEverything(t *testing.T) {
	a, b := Tee[int](FromSlice([]int{1, 2, 3, 4}))
	defer a.Close()
	defer b.Close()

	// Interleave the two sides with different paces.
	var gotA, gotB []int
	pull := func(side *TeeIterator[int], dst *[]int) {
		v, err := side.Next()
		if err != nil {
			if !errors.Is(err, Done) {
				t.Fatalf("Next failed: %v", err)
			}
			return
		}
		*dst = append(*dst, v)
	}

	pull(a, &gotA)
	pull(a, &gotA)
	pull(b, &gotB)
	pull(a, &gotA)
	pull(b, &gotB)
	pull(b, &gotB)
	pull(a, &gotA)
	pull(b, &gotB)

	for i, got := range [][]int{gotA, gotB} {
		if len(got) != 4 {
			t.Fatalf("Side %d saw %d elements: %v", i, len(got), got)
		}
		for j, v := range got {
			if v != j+1 {
				t.Errorf("Side %d order broken: %v", i, got)
				break
			}
		}
	}
}

func TestTee_OneSideRunsAhead(t *testing.T) {
	a, b := Tee[int](FromSlice([]int{1, 2, 3}))
	defer a.Close()
	defer b.Close()

	gotA, err := drainSide(a)
	if err != nil {
		t.Fatalf("Fast side failed: %v", err)
	}
	gotB, err := drainSide(b)
	if err != nil {
		t.Fatalf("Slow side failed: %v", err)
	}

	if len(gotA) != 3 || len(gotB) != 3 {
		t.Errorf("Expected both sides to see 3 elements, got %d and %d",
			len(gotA), len(gotB))
	}
}

func drainSide(side *TeeIterator[int]) ([]int, error) {
	var out []int
	for {
		v, err := side.Next()
		if err != nil {
			if errors.Is(err, Done) {
				return out, nil
			}
			return out, err
		}
		out = append(out, v)
	}
}

// TestTee_BoundedBufferStalls verifies the bounded-buffer protocol:
// the fast side can run one element past the twin's full buffer (the
// pending slot), stalls retryably after that, and resumes once the
// twin drains. No element is lost or reordered.
func TestTee_BoundedBufferStalls(t *testing.T) {
	a, b := Tee[int](FromSlice([]int{1, 2, 3, 4}), WithBufferCapacity(1))
	defer a.Close()
	defer b.Close()

	if v, err := a.Next(); err != nil || v != 1 {
		t.Fatalf("Expected 1, got (%d, %v)", v, err)
	}
	// Twin buffer full; this element lands in the twin's pending slot.
	if v, err := a.Next(); err != nil || v != 2 {
		t.Fatalf("Expected 2, got (%d, %v)", v, err)
	}
	// Buffer and pending slot both occupied: stall.
	if _, err := a.Next(); !errors.Is(err, ErrStalled) {
		t.Fatalf("Expected ErrStalled, got %v", err)
	}
	// A stall is retryable, not terminal.
	if _, err := a.Next(); !errors.Is(err, ErrStalled) {
		t.Fatalf("Stall should persist while the twin is full, got %v", err)
	}

	// The twin drains one element; the fast side can advance again.
	if v, err := b.Next(); err != nil || v != 1 {
		t.Fatalf("Twin expected 1, got (%d, %v)", v, err)
	}
	if v, err := a.Next(); err != nil || v != 3 {
		t.Fatalf("After drain expected 3, got (%d, %v)", v, err)
	}

	// The twin still sees everything in order.
	gotB, err := drainSide(b)
	if err != nil {
		t.Fatalf("Twin drain failed: %v", err)
	}
	want := []int{2, 3, 4}
	if len(gotB) != len(want) {
		t.Fatalf("Twin expected %v, got %v", want, gotB)
	}
	for i := range want {
		if gotB[i] != want[i] {
			t.Fatalf("Twin expected %v, got %v", want, gotB)
		}
	}
}

type closeCounting struct {
	*SliceIterator[int]
	closes int
}

func (c *closeCounting) Close() error {
	c.closes++
	return c.SliceIterator.Close()
}

// TestTee_LastCloseReleasesSource verifies that the shared source is
// closed exactly once, by whichever side closes last.
func TestTee_LastCloseReleasesSource(t *testing.T) {
	src := &closeCounting{SliceIterator: FromSlice([]int{1, 2})}
	a, b := Tee[int](src)

	if err := a.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if src.closes != 0 {
		t.Errorf("Source closed too early")
	}

	// The surviving side keeps working alone.
	got, err := drainSide(b)
	if err != nil {
		t.Fatalf("Surviving side failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Surviving side expected 2 elements, got %v", got)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if src.closes != 1 {
		t.Errorf("Source should be closed exactly once, got %d", src.closes)
	}

	if _, err := a.Next(); !errors.Is(err, Done) {
		t.Errorf("Closed side should return Done, got %v", err)
	}
}
