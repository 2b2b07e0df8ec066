/*
This file contains the error classes shared by every package.

Package level sentinel errors wrap exactly one of these classes so callers can decide how
to react with errors.Is without knowing which component failed.
*/

package types

import "errors"

var (
	// ErrConfiguration covers bad parameters, dimension mismatches, empty oracle lists and
	// duplicate registrations. Always rejected at the offending call.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthorization is returned before any state is read.
	ErrAuthorization = errors.New("authorization error")
	// ErrDataUnavailable means every oracle for some asset was stale or empty.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTiming is expected to recur and is not fatal.
	ErrTiming = errors.New("timing error")
	// ErrInvariant indicates a logic defect and aborts the call.
	ErrInvariant = errors.New("invariant violation")
)

// NewClassError builds a sentinel error that belongs to the given class.
func NewClassError(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

type classError struct {
	class error
	msg   string
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.class }
