// Package amderr defines the user-facing error type of the bundler.
//
// A UserError carries a message that is safe to print as is. The CLI prints
// user errors without the wrapped chain; everything else is reported in
// full.
package amderr

import (
	"errors"
	"fmt"
)

// UserError is an actionable error caused by the user's input or store.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Errorf returns a UserError with a formatted message.
func Errorf(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a UserError wrapping err.
func Wrap(err error, format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// As returns the UserError in err's chain, if any.
func As(err error) (*UserError, bool) {
	var u *UserError
	if errors.As(err, &u) {
		return u, true
	}
	return nil, false
}
