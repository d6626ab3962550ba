package mapsim

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whr-sorting/simbridge/core/protocol"
)

// ackServer answers every connection with reply and records what it read.
type ackServer struct {
	ln    net.Listener
	reply string

	mu  sync.Mutex
	got []string
}

func newAckServer(t *testing.T, reply string) *ackServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &ackServer{ln: ln, reply: reply}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 256)
			n, _ := conn.Read(buf)
			s.mu.Lock()
			s.got = append(s.got, string(buf[:n]))
			s.mu.Unlock()
			_, _ = conn.Write([]byte(s.reply))
			_ = conn.Close()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *ackServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func newMapping(t *testing.T, notifyAddr string) *MappingServer {
	t.Helper()
	n := &Notifier{Addr: notifyAddr, Attempts: 2, Timeout: time.Second, Pause: 10 * time.Millisecond}
	return NewMappingServer(n, nil, nil)
}

func TestMappingServer_UpdateAndQueries(t *testing.T) {
	m := newMapping(t, "127.0.0.1:1")
	ctx := context.Background()

	assert.Equal(t, protocol.ReplyOK, m.Handle(ctx, "UPDATE:FFEE1234:1:3:1:apple, pear ,fig"))
	assert.Equal(t, protocol.ReplyOK, m.Handle(ctx, "UPDATE:AAAA0001:2:1"))

	assert.Equal(t, "FFEE1234:1:1,AAAA0001:2:0", m.Handle(ctx, "GET_MAPPING"))
	assert.Equal(t, "apple,pear,fig", m.Handle(ctx, "GET_PRODUCTS:FFEE1234"))
	assert.Equal(t, "", m.Handle(ctx, "GET_PRODUCTS:AAAA0001"))
	assert.Equal(t, protocol.ReplyNotFound, m.Handle(ctx, "GET_PRODUCTS:NOPE"))

	status := m.Handle(ctx, "STATUS")
	assert.True(t, strings.HasPrefix(status, "Active Orders: 2"))
	assert.Contains(t, status, "FFEE1234: Crate 1, 0/3 (FAST) - apple, pear, fig")
	assert.Contains(t, status, "AAAA0001: Crate 2, 0/1 (NORMAL)")
}

func TestMappingServer_InvalidAndUnknown(t *testing.T) {
	m := newMapping(t, "127.0.0.1:1")
	ctx := context.Background()

	assert.Equal(t, protocol.ReplyInvalidFormat, m.Handle(ctx, "UPDATE:X:notanumber:3"))
	assert.Equal(t, protocol.ReplyInvalidFormat, m.Handle(ctx, "UPDATE:X"))
	assert.Equal(t, protocol.ReplyUnknownCommand, m.Handle(ctx, "FROBNICATE"))
	assert.Equal(t, protocol.ReplyUnknownOrder, m.Handle(ctx, "PRODUCT_PROCESSED:NOPE"))
	assert.Equal(t, protocol.ReplyRemoved, m.Handle(ctx, "REMOVE:NOPE"))
	assert.Equal(t, "No active orders", m.Handle(ctx, "STATUS"))
}

func TestMappingServer_ProcessUntilComplete(t *testing.T) {
	bridge := newAckServer(t, protocol.ReplyAck)
	m := newMapping(t, bridge.ln.Addr().String())
	ctx := context.Background()

	require.Equal(t, protocol.ReplyOK, m.Handle(ctx, "UPDATE:FFEE1234:4:2:0:a,b"))
	assert.Equal(t, "PROGRESS:1/2", m.Handle(ctx, "PRODUCT_PROCESSED:FFEE1234"))
	assert.Equal(t, "ORDER_COMPLETED:CRATE 4", m.Handle(ctx, "PRODUCT_PROCESSED:FFEE1234"))

	assert.Equal(t, []string{"COMPLETED:FFEE1234"}, bridge.received())
	assert.Equal(t, 0, m.Registry.Len())
}

func TestMappingServer_NotFoundCountsAsDelivered(t *testing.T) {
	bridge := newAckServer(t, protocol.ReplyNotFound)
	m := newMapping(t, bridge.ln.Addr().String())
	ctx := context.Background()

	m.Handle(ctx, "UPDATE:FFEE1234:4:1")
	assert.Equal(t, "ORDER_COMPLETED:CRATE 4", m.Handle(ctx, "PRODUCT_PROCESSED:FFEE1234"))
	assert.Len(t, bridge.received(), 1)
}

func TestMappingServer_NotificationFailure(t *testing.T) {
	bridge := newAckServer(t, protocol.ReplyError)
	m := newMapping(t, bridge.ln.Addr().String())
	ctx := context.Background()

	m.Handle(ctx, "UPDATE:FFEE1234:4:1")
	assert.Equal(t, protocol.ReplyNotifyFailed, m.Handle(ctx, "PRODUCT_PROCESSED:FFEE1234"))
	assert.Len(t, bridge.received(), 2)
	// the order stays registered so the completion can be retried
	assert.Equal(t, 1, m.Registry.Len())
}

func TestMappingServer_OverTCP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newMapping(t, "127.0.0.1:1")
	require.NoError(t, m.Start(ctx, "127.0.0.1:0"))

	cli := protocol.NewAssignmentClient(m.Addr(), time.Second)
	err := cli.SendAssignment(ctx, protocol.Assignment{ShortID: "FFEE1234", Crate: 1, TotalProducts: 2, Priority: 1, Products: []string{"apple", "pear"}})
	require.NoError(t, err)

	reply, err := protocol.NewClient(m.Addr(), time.Second).Send(ctx, "GET_MAPPING")
	require.NoError(t, err)
	assert.Equal(t, "FFEE1234:1:1", reply)

	cancel()
	m.Wait()
	_, err = protocol.NewClient(m.Addr(), 200*time.Millisecond).Send(context.Background(), "STATUS")
	assert.Error(t, err)
}

func TestMappingServer_AutoProcess(t *testing.T) {
	bridge := newAckServer(t, protocol.ReplyAck)
	n := &Notifier{Addr: bridge.ln.Addr().String(), Timeout: time.Second}
	m := NewMappingServer(n, AutoProcess{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.Equal(t, protocol.ReplyOK, m.Handle(ctx, "UPDATE:FFEE1234:1:3"))

	require.Eventually(t, func() bool {
		return len(bridge.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, m.Registry.Len())
	cancel()
	m.Wait()
}

func TestRandomDrop_DropsEverything(t *testing.T) {
	m := NewMappingServer(nil, nil, nil)
	ctx := context.Background()
	m.Handle(ctx, "UPDATE:FFEE1234:1:3")
	e, _ := m.Registry.Get("FFEE1234")

	(&RandomDrop{DropRate: 1}).Process(ctx, m, e)
	got, ok := m.Registry.Get("FFEE1234")
	require.True(t, ok)
	assert.Equal(t, 0, got.Processed)

	(&RandomDrop{}).Process(ctx, m, e)
	_, ok = m.Registry.Get("FFEE1234")
	// nil notifier: the order is complete but stays registered
	assert.True(t, ok)
	got, _ = m.Registry.Get("FFEE1234")
	assert.Equal(t, 3, got.Processed)
}

func TestControlServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewControlServer(nil)
	require.NoError(t, c.Start(ctx, "127.0.0.1:0"))

	cli := protocol.NewControlClient(c.Addr(), time.Second)
	reply, err := cli.SendCommand(ctx, protocol.CommandAutomatic)
	require.NoError(t, err)
	assert.Equal(t, ReplyAutomatic, reply)
	assert.Equal(t, protocol.CommandAutomatic, c.Mode())

	reply, err = cli.SendCommand(ctx, protocol.CommandManual)
	require.NoError(t, err)
	assert.Equal(t, ReplyTeleoperation, reply)

	assert.Equal(t, protocol.ReplyUnknownCommand, c.Handle(ctx, "dance"))
	assert.Equal(t, protocol.CommandManual, c.Mode())
}
