package protocol

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// serveOnce accepts connections on a loopback listener and hands each one to
// handle. The listener is closed at test end.
func serveOnce(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				handle(conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func readCommand(conn net.Conn) string {
	buf := make([]byte, 1024)
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestSendAssignment_OK(t *testing.T) {
	got := make(chan string, 1)
	addr := serveOnce(t, func(c net.Conn) {
		got <- readCommand(c)
		_, _ = c.Write([]byte("OK\n"))
	})
	ac := NewAssignmentClient(addr, time.Second)
	asg := Assignment{ShortID: "FFEE1234", Crate: 1, TotalProducts: 3, Priority: 1, Products: []string{"apple", "pear"}}
	if err := ac.SendAssignment(context.Background(), asg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if cmd := <-got; cmd != "UPDATE:FFEE1234:1:3:1:apple,pear" {
		t.Fatalf("unexpected command %q", cmd)
	}
}

func TestSendAssignment_UnexpectedResponse(t *testing.T) {
	addr := serveOnce(t, func(c net.Conn) {
		readCommand(c)
		_, _ = c.Write([]byte("ERROR_INVALID_FORMAT"))
	})
	err := NewAssignmentClient(addr, time.Second).SendAssignment(context.Background(), Assignment{ShortID: "A"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUnexpectedResponse {
		t.Fatalf("expected unexpected response got %v", err)
	}
	if pe.Response != "ERROR_INVALID_FORMAT" {
		t.Fatalf("raw response not preserved: %q", pe.Response)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = NewClient(addr, time.Second).Send(context.Background(), "STATUS")
	if kind, ok := KindOf(err); !ok || kind != KindConnectionFailed {
		t.Fatalf("expected connection failure got %v", err)
	}
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := serveOnce(t, func(c net.Conn) {
		readCommand(c)
		<-release
	})
	start := time.Now()
	_, err := NewClient(addr, 50*time.Millisecond).Send(context.Background(), "STATUS")
	if kind, ok := KindOf(err); !ok || kind != KindTimeout {
		t.Fatalf("expected timeout got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestSend_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := serveOnce(t, func(c net.Conn) {
		readCommand(c)
		<-release
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := NewClient(addr, 5*time.Second).Send(ctx, "STATUS")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation got %v", err)
	}
}

func TestSend_ClosedWithoutReply(t *testing.T) {
	addr := serveOnce(t, func(c net.Conn) { readCommand(c) })
	_, err := NewClient(addr, time.Second).Send(context.Background(), "STATUS")
	if kind, ok := KindOf(err); !ok || kind != KindUnexpectedResponse {
		t.Fatalf("expected unexpected response got %v", err)
	}
}

func TestControlClient(t *testing.T) {
	addr := serveOnce(t, func(c net.Conn) {
		cmd := readCommand(c)
		_, _ = c.Write([]byte("mode set: " + cmd))
	})
	resp, err := NewControlClient(addr, time.Second).SendCommand(context.Background(), CommandAutomatic)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp != "mode set: start_yolo" {
		t.Fatalf("unexpected reply %q", resp)
	}
}

func TestExchange_ReadsUntilClose(t *testing.T) {
	reply := strings.Repeat("x", 3*MaxResponseSize)
	addr := serveOnce(t, func(c net.Conn) {
		readCommand(c)
		for i := 0; i < len(reply); i += 1000 {
			end := min(i+1000, len(reply))
			_, _ = c.Write([]byte(reply[i:end]))
			time.Sleep(5 * time.Millisecond)
		}
	})
	got, err := NewClient(addr, time.Second).Exchange(context.Background(), "LOGS")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got != reply {
		t.Fatalf("got %d bytes, want %d", len(got), len(reply))
	}
}

func TestExchange_EmptyReply(t *testing.T) {
	addr := serveOnce(t, func(c net.Conn) { readCommand(c) })
	_, err := NewClient(addr, time.Second).Exchange(context.Background(), "LOGS")
	if kind, _ := KindOf(err); kind != KindUnexpectedResponse {
		t.Fatalf("kind = %q, err = %v", kind, err)
	}
}

func TestServer_AnswersClient(t *testing.T) {
	srv := NewServer("echo", func(_ context.Context, cmd string) string {
		return "GOT:" + cmd
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := NewClient(srv.Addr(), time.Second).Send(context.Background(), "PING\n")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "GOT:PING" {
		t.Fatalf("unexpected reply %q", got)
	}
	cancel()
	srv.Wait()
	if _, err := NewClient(srv.Addr(), 200*time.Millisecond).Send(context.Background(), "PING"); err == nil {
		t.Fatalf("expected connection failure after shutdown")
	}
}
