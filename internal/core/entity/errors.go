package entity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("entity not found")

// FetchError is a pagination or dictionary fetch failure. It is surfaced as a
// list-level error state and never retried automatically.
type FetchError struct {
	Op         string
	Collection string
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a retryable fetch failure.
func NewFetchError(op, collection string, err error) *FetchError {
	return &FetchError{Op: op, Collection: collection, Err: err, Retryable: true}
}

// IsFetchError reports whether err wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
