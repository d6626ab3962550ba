// Package protocol implements the line-oriented TCP protocol spoken with the
// mapping service, the simulation control endpoint and completion notifiers.
// Every request uses a fresh connection: write one command, read one reply,
// close.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a full request, from dial to reply.
	DefaultTimeout = 5 * time.Second
	// MaxResponseSize is the largest reply read from a single request.
	MaxResponseSize = 4096
	// MaxExchangeSize caps replies read by Exchange.
	MaxExchangeSize = 1 << 20
)

// Client sends single commands to a TCP endpoint.
type Client struct {
	Addr    string
	Timeout time.Duration
}

// NewClient returns a client for addr. A non-positive timeout selects
// DefaultTimeout.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{Addr: addr, Timeout: timeout}
}

// Send writes command without a trailing terminator and returns the trimmed
// reply from the first read.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	return c.roundTrip(ctx, command, func(conn net.Conn) ([]byte, error) {
		buf := make([]byte, MaxResponseSize)
		n, err := conn.Read(buf)
		return buf[:n], err
	})
}

// Exchange is Send for replies that may span several reads: it reads until the
// peer closes the connection, up to MaxExchangeSize bytes.
func (c *Client) Exchange(ctx context.Context, command string) (string, error) {
	return c.roundTrip(ctx, command, func(conn net.Conn) ([]byte, error) {
		data, err := io.ReadAll(io.LimitReader(conn, MaxExchangeSize+1))
		if len(data) > MaxExchangeSize {
			return nil, &Error{Kind: KindUnexpectedResponse, Addr: c.Addr, Command: verb(command),
				Err: fmt.Errorf("reply exceeds %d bytes", MaxExchangeSize)}
		}
		if err == nil && len(data) == 0 {
			err = io.EOF
		}
		return data, err
	})
}

func (c *Client) roundTrip(ctx context.Context, command string, read func(net.Conn) ([]byte, error)) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", c.classify(ctx, command, err)
	}
	defer func() { _ = conn.Close() }()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, command); err != nil {
		return "", c.classify(ctx, command, err)
	}
	data, err := read(conn)
	if len(data) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return "", err
	}
	if err == nil || errors.Is(err, io.EOF) {
		return "", &Error{Kind: KindUnexpectedResponse, Addr: c.Addr, Command: verb(command), Err: io.ErrUnexpectedEOF}
	}
	return "", c.classify(ctx, command, err)
}

func (c *Client) classify(ctx context.Context, command string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindConnectionFailed, Addr: c.Addr, Command: verb(command), Err: ctx.Err()}
	}
	kind := KindConnectionFailed
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Addr: c.Addr, Command: verb(command), Err: err}
}

// verb keeps error messages short by dropping command arguments.
func verb(command string) string {
	if i := strings.IndexByte(command, ':'); i >= 0 {
		return command[:i]
	}
	return command
}
