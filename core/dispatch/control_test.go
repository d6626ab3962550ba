package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/protocol"
)

type fakeCommander struct {
	reply string
	err   error
	got   []string
}

func (f *fakeCommander) SendCommand(_ context.Context, cmd string) (string, error) {
	f.got = append(f.got, cmd)
	return f.reply, f.err
}

func TestSendControlCommand_NotRunning(t *testing.T) {
	cmd := &fakeCommander{}
	c := NewController(fakeSim{}, cmd, nil, nil)
	_, err := c.SendControlCommand(context.Background(), protocol.CommandManual)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning got %v", err)
	}
	if len(cmd.got) != 0 {
		t.Fatalf("no connection expected while stopped")
	}
}

func TestSetMode(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	cmd := &fakeCommander{reply: "YOLO mode started"}
	buf := activity.NewBuffer(10)
	c := NewController(fakeSim{running: true}, cmd, buf, nil)
	resp, err := c.SetMode(context.Background(), "auto")
	if err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if resp != "YOLO mode started" || cmd.got[0] != protocol.CommandAutomatic {
		t.Fatalf("unexpected exchange %q %v", resp, cmd.got)
	}
	if len(buf.Logs(activity.CategoryInfo)) != 1 {
		t.Fatalf("expected info entry")
	}
	if v := testutil.ToFloat64(controlCommands.WithLabelValues(protocol.CommandAutomatic, "ok")); v != 1 {
		t.Errorf("controlCommands expected 1 got %f", v)
	}

	if _, err := c.SetMode(context.Background(), "warp"); KindOf(err) != KindInvalidCommand {
		t.Fatalf("expected invalid command got %v", err)
	}
}

func TestSendControlCommand_ProtocolFailure(t *testing.T) {
	cmd := &fakeCommander{err: &protocol.Error{Kind: protocol.KindConnectionFailed, Addr: "127.0.0.1:10021"}}
	c := NewController(fakeSim{running: true}, cmd, nil, nil)
	_, err := c.SendControlCommand(context.Background(), "custom")
	if KindOf(err) != KindConnectionFailed || HintOf(err) == "" {
		t.Fatalf("expected connection failure with hint got %v", err)
	}
}
