package iters

import "fmt"

// ChunkIterator splits one sequential source into a lazy sequence of
// bounded sub-iterators. Producing the next chunk pulls exactly one
// element ahead from the source to seed it; the rest of the chunk is
// drawn lazily as it is consumed.
//
// All chunks share the one underlying source, so the caller must fully
// drain each chunk before requesting the next. Draining order is the
// caller's responsibility and is not enforced. Closing a
// partially-drained chunk drains its undrained elements from the
// source first, so they are not silently skipped.
type ChunkIterator[T any] struct {
	src     Iterator[T]
	size    int
	done    bool
	lastErr error
}

// Chunkify splits src into chunks of up to size elements. A size of
// zero is an invalid argument. The returned iterator owns src and
// closes it on Close.
func Chunkify[T any](src Iterator[T], size int) (*ChunkIterator[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", ErrInvalid, size)
	}
	return &ChunkIterator[T]{src: src, size: size}, nil
}

// Next yields the next chunk, seeded with one look-ahead element from
// the source. It returns Done once the source is exhausted.
func (c *ChunkIterator[T]) Next() (*Chunk[T], error) {
	if c.done {
		return nil, Done
	}

	first, err := c.src.Next()
	if err != nil {
		c.done = true
		if err != Done {
			c.lastErr = err
			return nil, err
		}
		return nil, Done
	}

	return &Chunk[T]{
		src:       c.src,
		first:     first,
		remaining: c.size - 1,
	}, nil
}

// Close closes the underlying source. Chunks handed out earlier must
// not be used afterwards.
func (c *ChunkIterator[T]) Close() error {
	c.done = true
	return c.src.Close()
}

// Chunk yields up to chunk-size elements of the shared source. It
// borrows the source from its ChunkIterator and never closes it.
type Chunk[T any] struct {
	src       Iterator[T]
	first     T
	seeded    bool
	remaining int
	done      bool
}

func (ch *Chunk[T]) Next() (T, error) {
	var zero T
	if ch.done {
		return zero, Done
	}

	if !ch.seeded {
		ch.seeded = true
		return ch.first, nil
	}

	if ch.remaining == 0 {
		ch.done = true
		return zero, Done
	}

	elem, err := ch.src.Next()
	if err != nil {
		ch.done = true
		return zero, err
	}
	ch.remaining--
	return elem, nil
}

// Close marks the chunk exhausted. If the chunk was only partially
// drained, the remaining elements are pulled from the shared source
// and discarded so the next chunk starts at the right offset.
func (ch *Chunk[T]) Close() error {
	if ch.done {
		return nil
	}

	// The seed element was already pulled from the source; only the
	// lazy remainder is still in there.
	ch.seeded = true
	for ch.remaining > 0 {
		if _, err := ch.src.Next(); err != nil {
			break
		}
		ch.remaining--
	}
	ch.done = true
	return nil
}
