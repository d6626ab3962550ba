package protocol

import (
	"context"
	"strings"
	"time"
)

// AssignmentClient delivers assignments to the mapping service.
type AssignmentClient struct {
	client *Client
}

// NewAssignmentClient targets the mapping service at addr.
func NewAssignmentClient(addr string, timeout time.Duration) *AssignmentClient {
	return &AssignmentClient{client: NewClient(addr, timeout)}
}

// Addr returns the mapping service address.
func (a *AssignmentClient) Addr() string { return a.client.Addr }

// SendAssignment sends an UPDATE and succeeds when the reply contains "OK".
func (a *AssignmentClient) SendAssignment(ctx context.Context, asg Assignment) error {
	resp, err := a.client.Send(ctx, asg.Encode())
	if err != nil {
		return err
	}
	if !strings.Contains(resp, ReplyOK) {
		return &Error{Kind: KindUnexpectedResponse, Addr: a.client.Addr, Command: CmdUpdate, Response: resp}
	}
	return nil
}
