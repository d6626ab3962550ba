package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/whr-sorting/simbridge/core/protocol"
)

// ErrorKind classifies dispatch and control failures.
type ErrorKind string

const (
	KindNotRunning         ErrorKind = "not_running"
	KindNotFound           ErrorKind = "not_found"
	KindEmptyOrder         ErrorKind = "empty_order"
	KindAlreadyCompleted   ErrorKind = "already_completed"
	KindInvalidCommand     ErrorKind = "invalid_command"
	KindConnectionFailed   ErrorKind = "connection_failed"
	KindTimeout            ErrorKind = "timeout"
	KindUnexpectedResponse ErrorKind = "unexpected_response"
	KindPersistence        ErrorKind = "persistence"
)

// Error carries a failure kind, a message for the caller and, where one
// exists, a remediation hint.
type Error struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotRunning = &Error{Kind: KindNotRunning}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrEmptyOrder = &Error{Kind: KindEmptyOrder}
)

// KindOf returns the kind of a dispatch error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HintOf returns the remediation hint carried by err, if any.
func HintOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Hint
	}
	return ""
}

// fromProtocol converts a transport error into a dispatch error. peer names
// the remote service in the hint.
func fromProtocol(err error, peer, addr string, timeout time.Duration) *Error {
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		return &Error{Kind: KindConnectionFailed, Message: fmt.Sprintf("%s request failed", peer), Err: err}
	}
	switch pe.Kind {
	case protocol.KindTimeout:
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%s at %s did not answer", peer, addr),
			Hint:    fmt.Sprintf("the %s accepted the connection but did not reply within %s; check that it is not stalled", peer, timeout),
			Err:     err,
		}
	case protocol.KindUnexpectedResponse:
		return &Error{
			Kind:    KindUnexpectedResponse,
			Message: fmt.Sprintf("%s rejected the request", peer),
			Hint:    fmt.Sprintf("the %s replied %q; check that it speaks the same protocol version", peer, pe.Response),
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindConnectionFailed,
			Message: fmt.Sprintf("cannot reach %s at %s", peer, addr),
			Hint:    fmt.Sprintf("start the %s so that it listens on %s", peer, addr),
			Err:     err,
		}
	}
}
