package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/logger"
	"github.com/whr-sorting/simbridge/core/protocol"
)

// CommandSender sends a bare command and returns the raw reply.
type CommandSender interface {
	SendCommand(ctx context.Context, command string) (string, error)
}

// Controller relays operator commands to the simulation control endpoint.
type Controller struct {
	sim     SimulationState
	sender  CommandSender
	buf     *activity.Buffer
	log     logger.Logger
	addr    string
	timeout time.Duration
}

// NewController wires a controller. buf and log may be nil.
func NewController(sim SimulationState, sender CommandSender, buf *activity.Buffer, log logger.Logger) *Controller {
	if buf == nil {
		buf = activity.NewBuffer(0)
	}
	c := &Controller{sim: sim, sender: sender, buf: buf, log: logger.OrNop(log), timeout: protocol.DefaultTimeout}
	if a, ok := sender.(interface{ Addr() string }); ok {
		c.addr = a.Addr()
	}
	return c
}

// SendControlCommand forwards command while the simulation runs. No
// connection is attempted otherwise.
func (c *Controller) SendControlCommand(ctx context.Context, command string) (string, error) {
	if !c.sim.IsRunning() {
		controlCommands.WithLabelValues(commandLabel(command), string(KindNotRunning)).Inc()
		return "", &Error{
			Kind:    KindNotRunning,
			Message: "simulation is not running",
			Hint:    "start the simulation before sending control commands",
		}
	}
	start := time.Now()
	resp, err := c.sender.SendCommand(ctx, command)
	controlRoundTrip.Observe(time.Since(start).Seconds())
	if err != nil {
		de := fromProtocol(err, "simulation controller", c.addr, c.timeout)
		controlCommands.WithLabelValues(commandLabel(command), string(de.Kind)).Inc()
		c.buf.Appendf(activity.CategoryError, "Control command %s failed: %s", command, de.Error())
		return "", de
	}
	controlCommands.WithLabelValues(commandLabel(command), "ok").Inc()
	c.buf.Appendf(activity.CategoryInfo, "Control command %s: %s", command, resp)
	c.log.Infof("control command %s answered %q", command, resp)
	return resp, nil
}

// SetMode switches the simulation between manual and automatic operation.
func (c *Controller) SetMode(ctx context.Context, mode string) (string, error) {
	cmd, ok := protocol.ModeCommand(mode)
	if !ok {
		return "", &Error{
			Kind:    KindInvalidCommand,
			Message: fmt.Sprintf("unknown mode %q", mode),
			Hint:    "use manual or auto",
		}
	}
	return c.SendControlCommand(ctx, cmd)
}

// commandLabel keeps the metric label set bounded.
func commandLabel(command string) string {
	switch command {
	case protocol.CommandManual, protocol.CommandAutomatic:
		return command
	}
	return "other"
}
