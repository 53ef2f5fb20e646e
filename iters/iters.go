// Package iters provides the pull-based iteration protocol shared by
// every scan, change stream and buffering need in the library, plus a
// small set of combinators to compose them.
//
// Each pull returns either an element, exhaustion, or a failure.
// Exhaustion is the sentinel Done, never conflated with a real error.
// Once an iterator has signaled Done or a failure, further pulls
// return Done. Iterators are not safe for concurrent use without
// external synchronization; closing an iterator early is the only
// cancellation primitive.
package iters

import "errors"

// Done signals normal exhaustion of an iterator. It is not an error
// condition.
var Done = errors.New("iters: no more elements")

// ErrInvalid reports a bad combinator argument.
var ErrInvalid = errors.New("iters: invalid argument")

// Iterator is a stateful cursor over a sequence of T.
//
// Next returns the next element, or Done on exhaustion, or any other
// error on failure. After Done or a failure, every later Next returns
// Done.
//
// Close releases the iterator and any sub-iterator it exclusively
// owns; it is idempotent. Combinators built over a borrowed source
// document that they do not own or close it.
type Iterator[T any] interface {
	Next() (T, error)
	Close() error
}

// Collect drains it into a slice, closing it afterwards. The first
// failure is returned with the elements pulled so far.
func Collect[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()

	var out []T
	for {
		elem, err := it.Next()
		if err != nil {
			if errors.Is(err, Done) {
				return out, nil
			}
			return out, err
		}
		out = append(out, elem)
	}
}
