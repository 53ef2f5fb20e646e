package iters

// SliceIterator yields the elements of a caller-owned slice in order.
// It owns no memory of its own: the slice must outlive the iterator,
// and the iterator is not restartable in place (recreate to restart).
type SliceIterator[T any] struct {
	items []T
	index int
	done  bool
}

// FromSlice builds an iterator over items. An empty slice yields
// immediate exhaustion.
func FromSlice[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (s *SliceIterator[T]) Next() (T, error) {
	var zero T
	if s.done || s.index >= len(s.items) {
		s.done = true
		return zero, Done
	}

	elem := s.items[s.index]
	s.index++
	return elem, nil
}

func (s *SliceIterator[T]) Close() error {
	s.done = true
	return nil
}
