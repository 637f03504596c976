package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrContentNotFound signals a missing content document.
	ErrContentNotFound = errors.New("content not found")
	// ErrInvalidQuery signals a query that failed validation before execution.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidContent signals content that cannot be indexed.
	ErrInvalidContent = errors.New("invalid content")
	// ErrQueryFailed signals an index or resolver transport failure.
	ErrQueryFailed = errors.New("query failed")
	// ErrQueryTimeout signals that the query deadline expired before any hit was resolved.
	ErrQueryTimeout = errors.New("query timeout")
	// ErrQueryTooBroad signals a nested clause that joins more parents than allowed.
	ErrQueryTooBroad = errors.New("query too broad")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)

// QueryError wraps ErrInvalidQuery with the offending query element.
type QueryError struct {
	Element string
	Reason  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidQuery.Error(), e.Element, e.Reason)
}

func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// NewQueryError creates a validation error for a query element (attribute, ordering, filter key).
func NewQueryError(element, reason string) error {
	return &QueryError{Element: element, Reason: reason}
}
