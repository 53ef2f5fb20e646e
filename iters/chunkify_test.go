package iters

import (
	"errors"
	"testing"
)

// drainChunks pulls every chunk and concatenates their elements.
func drainChunks(t *testing.T, chunks *ChunkIterator[int]) ([][]int, []int) {
	t.Helper()

	var perChunk [][]int
	var flat []int
	for {
		chunk, err := chunks.Next()
		if err != nil {
			if errors.Is(err, Done) {
				return perChunk, flat
			}
			t.Fatalf("ChunkIterator.Next failed: %v", err)
		}

		elems, err := Collect[int](chunk)
		if err != nil {
			t.Fatalf("Chunk drain failed: %v", err)
		}
		perChunk = append(perChunk, elems)
		flat = append(flat, elems...)
	}
}

// TestChunkify_ConcatenationRestoresSource verifies chunk sizing and
// that chunk elements concatenate back to the source sequence.
func TestChunkify_ConcatenationRestoresSource(t *testing.T) {
	chunks, err := Chunkify[int](FromSlice([]int{1, 2, 3, 4, 5, 6, 7}), 3)
	if err != nil {
		t.Fatalf("Chunkify failed: %v", err)
	}
	defer chunks.Close()

	perChunk, flat := drainChunks(t, chunks)

	if len(perChunk) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(perChunk))
	}
	if len(perChunk[0]) != 3 || len(perChunk[1]) != 3 || len(perChunk[2]) != 1 {
		t.Errorf("Expected sizes 3/3/1, got %d/%d/%d",
			len(perChunk[0]), len(perChunk[1]), len(perChunk[2]))
	}
	for i, v := range flat {
		if v != i+1 {
			t.Fatalf("Order broken at %d: got %v", i, flat)
		}
	}
}

func TestChunkify_ExactMultiple(t *testing.T) {
	chunks, err := Chunkify[int](FromSlice([]int{1, 2, 3, 4}), 2)
	if err != nil {
		t.Fatalf("Chunkify failed: %v", err)
	}
	defer chunks.Close()

	perChunk, _ := drainChunks(t, chunks)
	if len(perChunk) != 2 {
		t.Errorf("Expected exactly 2 chunks, got %d", len(perChunk))
	}
}

func TestChunkify_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := Chunkify[int](FromSlice([]int{1}), size); !errors.Is(err, ErrInvalid) {
			t.Errorf("Chunkify(size=%d): expected ErrInvalid, got %v", size, err)
		}
	}
}

func TestChunkify_EmptySource(t *testing.T) {
	chunks, err := Chunkify[int](FromSlice[int](nil), 4)
	if err != nil {
		t.Fatalf("Chunkify failed: %v", err)
	}
	defer chunks.Close()

	if _, err := chunks.Next(); !errors.Is(err, Done) {
		t.Errorf("Empty source should yield no chunks, got %v", err)
	}
}

// TestChunkify_CloseDrainsPartialChunk verifies that closing a
// partially-drained chunk skips exactly its undrained elements, so the
// next chunk starts at the right offset.
func TestChunkify_CloseDrainsPartialChunk(t *testing.T) {
	chunks, err := Chunkify[int](FromSlice([]int{1, 2, 3, 4, 5, 6}), 3)
	if err != nil {
		t.Fatalf("Chunkify failed: %v", err)
	}
	defer chunks.Close()

	first, err := chunks.Next()
	if err != nil {
		t.Fatalf("First chunk failed: %v", err)
	}
	if v, err := first.Next(); err != nil || v != 1 {
		t.Fatalf("Expected 1, got (%d, %v)", v, err)
	}
	// Abandon the rest of the first chunk.
	if err := first.Close(); err != nil {
		t.Fatalf("Chunk close failed: %v", err)
	}

	second, err := chunks.Next()
	if err != nil {
		t.Fatalf("Second chunk failed: %v", err)
	}
	elems, err := Collect[int](second)
	if err != nil {
		t.Fatalf("Second chunk drain failed: %v", err)
	}
	if len(elems) != 3 || elems[0] != 4 {
		t.Errorf("Second chunk should start at 4, got %v", elems)
	}
}

// TestChunkify_UntouchedChunkClose closes a chunk before pulling
// anything from it; even the seed element must be skipped.
func TestChunkify_UntouchedChunkClose(t *testing.T) {
	chunks, err := Chunkify[int](FromSlice([]int{1, 2, 3, 4}), 2)
	if err != nil {
		t.Fatalf("Chunkify failed: %v", err)
	}
	defer chunks.Close()

	first, err := chunks.Next()
	if err != nil {
		t.Fatalf("First chunk failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Chunk close failed: %v", err)
	}

	second, err := chunks.Next()
	if err != nil {
		t.Fatalf("Second chunk failed: %v", err)
	}
	elems, err := Collect[int](second)
	if err != nil {
		t.Fatalf("Second chunk drain failed: %v", err)
	}
	if len(elems) != 2 || elems[0] != 3 {
		t.Errorf("Second chunk should start at 3, got %v", elems)
	}
}
