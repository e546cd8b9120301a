package rtc

import "errors"

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrUnknownCall      = errors.New("unknown call")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrForeignAttempt   = errors.New("attempt was not produced by this negotiator")
	ErrAttemptClaimed   = errors.New("attempt already answered or rejected")
	ErrClosed           = errors.New("negotiator closed")
)
