package iters

import "errors"

// ErrStalled reports that a tee side cannot advance without losing an
// element destined for its twin: the twin's buffer is full and its
// pending slot is occupied. The condition clears once the twin drains;
// the pull may be retried.
var ErrStalled = errors.New("iters: tee twin has fallen too far behind")

type teeShared[T any] struct {
	src  Iterator[T]
	refs int
}

// TeeIterator is one of the two independently-paced consumers produced
// by Tee. Whichever side pulls first reads directly from the shared
// source and hands a copy to its twin through the twin's FIFO buffer;
// when the buffer is full the element is parked in the twin's
// single-slot pending field and re-enqueued the next time either side
// advances. A side always empties its pending slot and buffer before
// touching the source, so the faster side never causes double
// consumption for the slower one.
//
// The shared source is closed only when the second side is closed.
type TeeIterator[T any] struct {
	shared *teeShared[T]
	twin   *TeeIterator[T]

	queue    []T
	capacity int
	pending  *T

	done   bool
	closed bool
}

// TeeOption configures a Tee pair.
type TeeOption func(*teeConfig)

type teeConfig struct {
	capacity int
}

// WithBufferCapacity bounds each side's FIFO buffer to n elements.
// The default (0) is unbounded. This is the process-wide "preferred
// buffer size" of the original design, passed explicitly at
// construction instead of read from a hidden global.
func WithBufferCapacity(n int) TeeOption {
	return func(cfg *teeConfig) {
		cfg.capacity = n
	}
}

// Tee splits src into two independently-paced iterators yielding the
// same elements in the same order. src must not be used directly
// afterwards; it is owned by the pair and closed when the last side is
// closed.
func Tee[T any](src Iterator[T], opts ...TeeOption) (*TeeIterator[T], *TeeIterator[T]) {
	cfg := teeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	shared := &teeShared[T]{src: src, refs: 2}
	a := &TeeIterator[T]{shared: shared, capacity: cfg.capacity}
	b := &TeeIterator[T]{shared: shared, capacity: cfg.capacity}
	a.twin = b
	b.twin = a
	return a, b
}

// enqueue hands an element to t for later consumption. It fails when
// the buffer is bounded and full.
func (t *TeeIterator[T]) enqueue(elem T) bool {
	if t.capacity > 0 && len(t.queue) >= t.capacity {
		return false
	}
	t.queue = append(t.queue, elem)
	return true
}

func (t *TeeIterator[T]) Next() (T, error) {
	var zero T
	if t.closed || t.done {
		return zero, Done
	}

	// Elements already handed over by the twin come first. The pending
	// slot holds an element that failed to enqueue at the tail of the
	// buffer, so it is consumed after the buffer, not before.
	if len(t.queue) > 0 {
		elem := t.queue[0]
		t.queue = t.queue[1:]
		return elem, nil
	}
	if t.pending != nil {
		elem := *t.pending
		t.pending = nil
		return elem, nil
	}

	// If the twin's last hand-over failed, retry it before reading a
	// new element, otherwise the twin's ordering would break.
	if t.twin != nil && t.twin.pending != nil {
		if !t.twin.enqueue(*t.twin.pending) {
			return zero, ErrStalled
		}
		t.twin.pending = nil
	}

	elem, err := t.shared.src.Next()
	if err != nil {
		t.done = true
		return zero, err
	}

	if t.twin != nil {
		if !t.twin.enqueue(elem) {
			// Park the element on the twin; it is retried before the
			// source is touched again, so nothing is ever dropped.
			pending := elem
			t.twin.pending = &pending
		}
	}

	return elem, nil
}

// Close releases this side. The twin keeps the shared source and
// buffer alive until it is closed as well.
func (t *TeeIterator[T]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.queue = nil
	t.pending = nil

	if t.twin != nil {
		t.twin.twin = nil
		t.twin = nil
	}

	t.shared.refs--
	if t.shared.refs == 0 {
		return t.shared.src.Close()
	}
	return nil
}
