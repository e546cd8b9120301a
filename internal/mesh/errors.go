package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrStopped      = errors.New("session stopped")
	ErrNoMedia      = errors.New("local media unavailable")
	ErrNoSource     = errors.New("no media source given")
	ErrEmptyMessage = errors.New("chat message is empty")
	ErrDisconnected = errors.New("registry connection lost")
	ErrNotStarted   = errors.New("session not started")
	ErrLinkLost     = errors.New("media connection lost")
)

// Error describes a failed session operation.
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
