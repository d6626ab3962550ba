package mapsim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/whr-sorting/simbridge/core/logger"
	"github.com/whr-sorting/simbridge/core/protocol"
)

// MappingServer emulates the order mapping service.
type MappingServer struct {
	*protocol.Server
	Registry *Registry
	Notifier *Notifier
	Strategy ProcessStrategy

	log logger.Logger
	bg  sync.WaitGroup
}

// NewMappingServer wires a mapping service. strategy may be nil, in which
// case products are only processed through PRODUCT_PROCESSED commands.
func NewMappingServer(notifier *Notifier, strategy ProcessStrategy, log logger.Logger) *MappingServer {
	m := &MappingServer{Registry: NewRegistry(), Notifier: notifier, Strategy: strategy, log: logger.OrNop(log)}
	m.Server = protocol.NewServer("mapping service", m.Handle, log)
	return m
}

// Wait blocks until the server and any processing goroutines have stopped.
func (m *MappingServer) Wait() {
	m.Server.Wait()
	m.bg.Wait()
}

// Handle executes one mapping command and returns the reply.
func (m *MappingServer) Handle(ctx context.Context, cmd string) string {
	verb, arg, _ := strings.Cut(cmd, ":")
	switch verb {
	case protocol.CmdGetMapping:
		var parts []string
		for _, e := range m.Registry.Active() {
			parts = append(parts, fmt.Sprintf("%s:%d:%d", e.ID, e.Crate, e.Priority))
		}
		return strings.Join(parts, ",")
	case protocol.CmdGetProducts:
		e, ok := m.Registry.Get(arg)
		if !ok {
			return protocol.ReplyNotFound
		}
		return strings.Join(e.Products, ",")
	case protocol.CmdUpdate:
		asg, err := protocol.ParseUpdate(cmd)
		if err != nil {
			m.log.Warnf("invalid UPDATE %q: %v", cmd, err)
			return protocol.ReplyInvalidFormat
		}
		e := m.Registry.Register(asg)
		m.log.Infof("registered order %s crate %d total %d (%s)", e.ID, e.Crate, e.Total, e.label())
		if m.Strategy != nil {
			m.bg.Add(1)
			go func() {
				defer m.bg.Done()
				m.Strategy.Process(ctx, m, e)
			}()
		}
		return protocol.ReplyOK
	case protocol.CmdProductProcessed:
		return m.productProcessed(ctx, arg)
	case protocol.CmdRemove:
		if !m.Registry.Remove(arg) {
			m.log.Warnf("cannot remove unknown order %s", arg)
		}
		return protocol.ReplyRemoved
	case protocol.CmdStatus:
		return m.Registry.Status()
	}
	m.log.Warnf("unknown command %q", cmd)
	return protocol.ReplyUnknownCommand
}

func (m *MappingServer) productProcessed(ctx context.Context, id string) string {
	e, completed, ok := m.Registry.Process(id)
	if !ok {
		return protocol.ReplyUnknownOrder
	}
	if !completed {
		return fmt.Sprintf("%s%d/%d", protocol.ReplyProgressPrefix, e.Processed, e.Total)
	}
	m.log.Infof("order %s complete, notifying bridge", id)
	if m.Notifier == nil {
		return protocol.ReplyNotifyFailed
	}
	if err := m.Notifier.Notify(ctx, id); err != nil {
		m.log.Errorf("%v", err)
		return protocol.ReplyNotifyFailed
	}
	m.Registry.Remove(id)
	return fmt.Sprintf("%s%d", protocol.ReplyCompletedPrefix, e.Crate)
}

// Control replies of the simulated controller.
const (
	ReplyTeleoperation = "Teleoperation mode started"
	ReplyAutomatic     = "YOLO mode started"
)

// ControlServer emulates the simulation control endpoint.
type ControlServer struct {
	*protocol.Server
	log logger.Logger

	modeMu sync.Mutex
	mode   string
}

// NewControlServer returns a control endpoint emulator.
func NewControlServer(log logger.Logger) *ControlServer {
	c := &ControlServer{log: logger.OrNop(log)}
	c.Server = protocol.NewServer("control endpoint", c.Handle, log)
	return c
}

// Mode returns the last selected control command.
func (c *ControlServer) Mode() string {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

// Handle answers a control command.
func (c *ControlServer) Handle(_ context.Context, cmd string) string {
	var reply string
	switch cmd {
	case protocol.CommandManual:
		reply = ReplyTeleoperation
	case protocol.CommandAutomatic:
		reply = ReplyAutomatic
	default:
		return protocol.ReplyUnknownCommand
	}
	c.modeMu.Lock()
	c.mode = cmd
	c.modeMu.Unlock()
	c.log.Infof("control: %s", reply)
	return reply
}
