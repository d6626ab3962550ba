package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol failures.
type ErrorKind string

const (
	KindConnectionFailed   ErrorKind = "connection_failed"
	KindTimeout            ErrorKind = "timeout"
	KindUnexpectedResponse ErrorKind = "unexpected_response"
)

// Error is returned by every request made through Client.
type Error struct {
	Kind     ErrorKind
	Addr     string
	Command  string
	Response string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnexpectedResponse:
		return fmt.Sprintf("%s: unexpected response %q to %s", e.Addr, e.Response, e.Command)
	case KindTimeout:
		return fmt.Sprintf("%s: no response to %s within deadline", e.Addr, e.Command)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Addr, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Addr, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the protocol error kind from err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
