package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("not connected to server")
	ErrNotPaired    = errors.New("no partner yet")
	ErrServerGone   = errors.New("server connection lost")
	ErrEmptyMessage = errors.New("empty message")
)

// Error records the conversation step that failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
