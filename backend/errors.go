package backend

import (
	"errors"
	"fmt"
)

// Error is a classified backend failure. Retryable errors report
// transient storage-side contention; the caller may resubmit the same
// batch. Everything else is fatal for that operation.
type Error struct {
	Backend   string
	Op        string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("robinhood: %s backend: %s: %s", e.Backend, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient backend failure that
// may succeed when the operation is retried.
func IsRetryable(err error) bool {
	var berr *Error
	return errors.As(err, &berr) && berr.Retryable
}
