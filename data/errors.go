package data

import "errors"

// Standard errors shared by the core and every backend implementation.
var (
	// Argument and validation errors
	ErrInvalid = errors.New("robinhood: invalid argument")

	// Entry lookup errors
	ErrNotExist = errors.New("robinhood: entry does not exist")
	ErrExist    = errors.New("robinhood: entry already exists")

	// Resolution errors
	ErrNotFound    = errors.New("robinhood: not found")
	ErrUnsupported = errors.New("robinhood: operation unsupported")
)
