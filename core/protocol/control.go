package protocol

import (
	"context"
	"strings"
	"time"
)

// Control commands understood by the simulation controller.
const (
	CommandManual    = "start_teleoperation"
	CommandAutomatic = "start_yolo"
)

// ModeCommand maps an operating mode name onto its control command.
func ModeCommand(mode string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "manual", "teleoperation":
		return CommandManual, true
	case "auto", "automatic", "yolo":
		return CommandAutomatic, true
	}
	return "", false
}

// ControlClient sends bare commands to the simulation control endpoint.
type ControlClient struct {
	client *Client
}

// NewControlClient targets the control endpoint at addr.
func NewControlClient(addr string, timeout time.Duration) *ControlClient {
	return &ControlClient{client: NewClient(addr, timeout)}
}

// Addr returns the control endpoint address.
func (c *ControlClient) Addr() string { return c.client.Addr }

// SendCommand returns the raw reply. Any reply is accepted.
func (c *ControlClient) SendCommand(ctx context.Context, command string) (string, error) {
	return c.client.Send(ctx, command)
}
