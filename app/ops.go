package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/dispatch"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/supervisor"
)

// Commands accepted on the ops endpoint. Arguments follow the verb after a
// colon, e.g. DISPATCH:<order-id>:<priority> or LOGS:error.
const (
	OpsDispatch  = "DISPATCH"
	OpsSimStart  = "SIM_START"
	OpsSimStop   = "SIM_STOP"
	OpsSimStatus = "SIM_STATUS"
	OpsLogs      = "LOGS"
	OpsClearLogs = "CLEAR_LOGS"
	OpsControl   = "CONTROL"
	OpsMode      = "MODE"
)

// Error kinds reported by the ops endpoint on top of the dispatch kinds.
const (
	KindConfiguration dispatch.ErrorKind = "configuration"
	KindSimulation    dispatch.ErrorKind = "simulation"
)

// OpsReply is the JSON document written back for every ops command.
type OpsReply struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Kind  string          `json:"kind,omitempty"`
	Error string          `json:"error,omitempty"`
	Hint  string          `json:"hint,omitempty"`
}

// SimStatus answers SIM_STATUS.
type SimStatus struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// handleOps runs one operator command against the live components.
func (s *Service) handleOps(ctx context.Context, command string) string {
	verb, arg, _ := strings.Cut(command, ":")
	var (
		data any
		err  error
	)
	switch verb {
	case OpsDispatch:
		id, priority, perr := parseDispatch(arg)
		if perr != nil {
			err = perr
			break
		}
		data, err = s.Orchestrator.DispatchOrder(ctx, id, priority)
	case OpsSimStart:
		data, err = s.Supervisor.Start(ctx)
	case OpsSimStop:
		data = s.Supervisor.Stop()
	case OpsSimStatus:
		data = SimStatus{Running: s.Supervisor.IsRunning(), PID: s.Supervisor.PID()}
	case OpsLogs:
		var cats []activity.Category
		if arg != "" {
			c, ok := activity.ParseCategory(arg)
			if !ok {
				err = &dispatch.Error{
					Kind:    dispatch.KindInvalidCommand,
					Message: fmt.Sprintf("unknown log category %q", arg),
					Hint:    "use default, info, success or error",
				}
				break
			}
			cats = append(cats, c)
		}
		data = s.Activity.Logs(cats...)
	case OpsClearLogs:
		s.Activity.Clear()
	case OpsControl:
		data, err = s.Controller.SendControlCommand(ctx, arg)
	case OpsMode:
		data, err = s.Controller.SetMode(ctx, arg)
	default:
		err = &dispatch.Error{Kind: dispatch.KindInvalidCommand, Message: fmt.Sprintf("unknown operator command %q", verb)}
	}
	if err != nil {
		s.log.Debugf("ops %s: %v", verb, err)
	}
	return encodeOpsReply(data, err)
}

func parseDispatch(arg string) (string, int, error) {
	id, prio, hasPrio := strings.Cut(arg, ":")
	if id == "" {
		return "", 0, &dispatch.Error{Kind: dispatch.KindInvalidCommand, Message: "dispatch needs an order id"}
	}
	if !hasPrio || prio == "" {
		return id, 0, nil
	}
	p, err := strconv.Atoi(prio)
	if err != nil {
		return "", 0, &dispatch.Error{Kind: dispatch.KindInvalidCommand, Message: fmt.Sprintf("invalid priority %q", prio)}
	}
	return id, p, nil
}

func encodeOpsReply(data any, err error) string {
	reply := OpsReply{OK: err == nil}
	if data != nil {
		raw, merr := json.Marshal(data)
		if merr != nil && err == nil {
			err = merr
			reply.OK = false
		}
		reply.Data = raw
	}
	if err != nil {
		reply.Error = err.Error()
		reply.Kind, reply.Hint = classifyOps(err)
	}
	out, _ := json.Marshal(reply)
	return string(out)
}

func classifyOps(err error) (string, string) {
	var cfgErr *supervisor.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return string(KindConfiguration), cfgErr.Hint()
	case errors.Is(err, supervisor.ErrExitedEarly):
		return string(KindSimulation), "check the simulation output with simbridge logs --category error"
	}
	if kind := dispatch.KindOf(err); kind != "" {
		return string(kind), dispatch.HintOf(err)
	}
	return string(KindSimulation), ""
}

// OpsClient talks to the ops endpoint of a running serve process.
type OpsClient struct {
	client *protocol.Client
}

// NewOpsClient returns a client for the configured ops endpoint.
func NewOpsClient(ep protocol.Endpoint) *OpsClient {
	return &OpsClient{client: protocol.NewClient(ep.Addr(), ep.Timeout)}
}

// Addr is the endpoint the client dials.
func (c *OpsClient) Addr() string { return c.client.Addr }

// Unreachable reports whether err means no serve process answered.
func Unreachable(err error) bool {
	kind, ok := protocol.KindOf(err)
	return ok && kind == protocol.KindConnectionFailed
}

// Do sends command and decodes the reply data into out, which may be nil.
// Failures reported by serve come back as *dispatch.Error carrying the
// remote kind and hint.
func (c *OpsClient) Do(ctx context.Context, command string, out any) error {
	raw, err := c.client.Exchange(ctx, command)
	if err != nil {
		return err
	}
	var reply OpsReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return fmt.Errorf("decode ops reply: %w", err)
	}
	if !reply.OK {
		return &dispatch.Error{Kind: dispatch.ErrorKind(reply.Kind), Message: reply.Error, Hint: reply.Hint}
	}
	if out != nil && len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decode ops data: %w", err)
		}
	}
	return nil
}

func (c *OpsClient) Dispatch(ctx context.Context, orderID string, priority int) (dispatch.Summary, error) {
	var sum dispatch.Summary
	err := c.Do(ctx, fmt.Sprintf("%s:%s:%d", OpsDispatch, orderID, priority), &sum)
	return sum, err
}

func (c *OpsClient) StartSimulation(ctx context.Context) (supervisor.StartResult, error) {
	var res supervisor.StartResult
	err := c.Do(ctx, OpsSimStart, &res)
	return res, err
}

func (c *OpsClient) StopSimulation(ctx context.Context) (supervisor.StopResult, error) {
	var res supervisor.StopResult
	err := c.Do(ctx, OpsSimStop, &res)
	return res, err
}

func (c *OpsClient) Status(ctx context.Context) (SimStatus, error) {
	var st SimStatus
	err := c.Do(ctx, OpsSimStatus, &st)
	return st, err
}

// Logs fetches the activity log, optionally filtered to one category.
func (c *OpsClient) Logs(ctx context.Context, category activity.Category) ([]activity.Entry, error) {
	cmd := OpsLogs
	if category != "" {
		cmd += ":" + string(category)
	}
	var entries []activity.Entry
	err := c.Do(ctx, cmd, &entries)
	return entries, err
}

func (c *OpsClient) ClearLogs(ctx context.Context) error {
	return c.Do(ctx, OpsClearLogs, nil)
}

// Control sends a raw control command through serve.
func (c *OpsClient) Control(ctx context.Context, command string) (string, error) {
	var reply string
	err := c.Do(ctx, OpsControl+":"+command, &reply)
	return reply, err
}

func (c *OpsClient) SetMode(ctx context.Context, mode string) (string, error) {
	var reply string
	err := c.Do(ctx, OpsMode+":"+mode, &reply)
	return reply, err
}
