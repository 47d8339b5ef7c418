package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks operational store faults (connection loss, timeout).
// The authorization engine converts these into fail-closed DENY decisions.
var ErrUnavailable = errors.New("acl store unavailable")

// StoreError carries a code alongside the underlying cause
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("store error [%s]: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrInvalidBinding reports a binding rejected at the mutation boundary
func ErrInvalidBinding(err error) *StoreError {
	return &StoreError{
		Code:    "INVALID_BINDING",
		Message: "binding rejected at mutation boundary",
		Err:     err,
	}
}

// ErrInvalidFilter reports a malformed binding filter
func ErrInvalidFilter(err error) *StoreError {
	return &StoreError{
		Code:    "INVALID_FILTER",
		Message: "malformed binding filter",
		Err:     err,
	}
}

// ErrQueryFailed wraps an operational read failure as unavailable
func ErrQueryFailed(err error) error {
	return fmt.Errorf("%w: query failed: %w", ErrUnavailable, err)
}

// ErrMutationFailed wraps an operational write failure as unavailable
func ErrMutationFailed(err error) error {
	return fmt.Errorf("%w: mutation failed: %w", ErrUnavailable, err)
}
