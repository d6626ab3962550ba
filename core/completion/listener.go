// Package completion receives completion notifications from the simulation
// side and reconciles them onto awaiting orders.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/events"
	"github.com/whr-sorting/simbridge/core/logger"
	"github.com/whr-sorting/simbridge/core/metrics"
	"github.com/whr-sorting/simbridge/core/model"
	"github.com/whr-sorting/simbridge/core/monitoring"
	"github.com/whr-sorting/simbridge/core/progress"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/store"
	"github.com/whr-sorting/simbridge/internal/eventbus"
)

const (
	// DefaultIdleTimeout closes connections that send nothing for this long.
	DefaultIdleTimeout = 30 * time.Second
	// DefaultFlushWindow is how long an unterminated notification may stay
	// quiet before it is treated as complete. Every fragment restarts it.
	DefaultFlushWindow = 500 * time.Millisecond
	readChunk          = 1024
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("completion listener already started")

var errNoLongerAwaiting = errors.New("order no longer awaiting completion")

// Result describes how one notification was handled.
type Result struct {
	Reply      string
	Token      string
	OrderID    string
	Candidates []string
	Err        error
}

// Listener is the completion TCP server.
type Listener struct {
	addr     string
	orders   store.OrderStore
	strategy CorrelationStrategy
	progress progress.Tracker
	buf      *activity.Buffer
	sink     metrics.MetricsSink
	bus      eventbus.EventBus
	log      logger.Logger

	idleTimeout time.Duration
	flushWindow time.Duration

	mu      sync.Mutex
	ln      net.Listener
	started bool
	conns   map[net.Conn]struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a listener for addr. strategy defaults to Substring; tracker,
// buf, sink, bus and log may be nil.
func New(
	addr string,
	orders store.OrderStore,
	strategy CorrelationStrategy,
	tracker progress.Tracker,
	buf *activity.Buffer,
	sink metrics.MetricsSink,
	bus eventbus.EventBus,
	log logger.Logger,
) *Listener {
	if strategy == nil {
		strategy = Substring{}
	}
	if buf == nil {
		buf = activity.NewBuffer(0)
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Listener{
		addr:        addr,
		orders:      orders,
		strategy:    strategy,
		progress:    tracker,
		buf:         buf,
		sink:        sink,
		bus:         bus,
		log:         logger.OrNop(log),
		idleTimeout: DefaultIdleTimeout,
		flushWindow: DefaultFlushWindow,
		conns:       make(map[net.Conn]struct{}),
	}
}

// SetTimeouts overrides the idle timeout and flush window. Zero keeps the
// current value.
func (l *Listener) SetTimeouts(idle, flush time.Duration) {
	if idle > 0 {
		l.idleTimeout = idle
	}
	if flush > 0 {
		l.flushWindow = flush
	}
}

// Addr returns the listening address once Start has been called.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.addr
}

// Start binds the listening socket and serves connections in the background
// until ctx is canceled or Close is called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.ln = ln
	l.started = true
	l.done = make(chan struct{})
	done := l.done
	l.log.Infof("completion listener on %s (strategy %s)", ln.Addr(), l.strategy.Name())

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-done:
		}
	}()
	go func() {
		defer l.wg.Done()
		l.acceptLoop(ctx, ln)
	}()
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warnf("accept: %v", err)
			continue
		}
		if !l.track(conn) {
			_ = conn.Close()
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.serveConn(ctx, conn)
		}()
	}
}

func (l *Listener) track(c net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return false
	}
	l.conns[c] = struct{}{}
	activeConnections.Inc()
	return true
}

func (l *Listener) untrack(c net.Conn) {
	l.mu.Lock()
	delete(l.conns, c)
	l.mu.Unlock()
	activeConnections.Dec()
	_ = c.Close()
}

func (l *Listener) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return
	}
	_ = l.ln.Close()
	l.ln = nil
	close(l.done)
	for c := range l.conns {
		_ = c.Close()
	}
}

// Close stops accepting, drops open connections and waits for handlers.
func (l *Listener) Close() error {
	l.shutdown()
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		l.wg.Wait()
	}
	return nil
}

// serveConn reads notifications until the peer closes or goes idle. A line
// break ends a message; an unterminated notification is processed once the
// peer has been quiet for the flush window.
func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	var pending string
	chunk := make([]byte, readChunk)
	for {
		wait := l.idleTimeout
		if pending != "" {
			if _, ok := protocol.ExtractCompletion(pending); ok {
				wait = l.flushWindow
			}
		}
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			pending += string(chunk[:n])
			for {
				i := strings.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				pending = pending[i+1:]
				if !l.handle(ctx, conn, line) {
					return
				}
			}
			if len(pending) > protocol.MaxResponseSize {
				l.log.Warnf("completion message from %s exceeds %d bytes", conn.RemoteAddr(), protocol.MaxResponseSize)
				l.reply(conn, protocol.ReplyError)
				return
			}
		}
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && pending != "" {
			msg := pending
			pending = ""
			if !l.handle(ctx, conn, msg) {
				return
			}
			continue
		}
		if pending != "" {
			l.handle(ctx, conn, pending)
		}
		return
	}
}

// handle processes one message and writes the reply. It returns false when
// the connection should be dropped.
func (l *Listener) handle(ctx context.Context, conn net.Conn, msg string) bool {
	if strings.TrimSpace(msg) == "" {
		return true
	}
	token, ok := protocol.ExtractCompletion(msg)
	if !ok {
		completionMessages.WithLabelValues("invalid").Inc()
		l.log.Warnf("unrecognised message on completion port from %s: %q", conn.RemoteAddr(), msg)
		return l.reply(conn, protocol.ReplyError)
	}
	res := l.Reconcile(ctx, token)
	return l.reply(conn, res.Reply)
}

func (l *Listener) reply(conn net.Conn, r string) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(protocol.DefaultTimeout)); err != nil {
		return false
	}
	if _, err := conn.Write([]byte(r)); err != nil {
		l.log.Warnf("reply to %s: %v", conn.RemoteAddr(), err)
		return false
	}
	return true
}

// Reconcile correlates token with an awaiting order and marks it Completed.
// The reply is ACK on a match, NOT_FOUND when nothing awaits that token and
// ERROR when the store fails.
func (l *Listener) Reconcile(ctx context.Context, token string) Result {
	res := Result{Token: token}
	candidates, err := l.orders.FindByStatusIn(ctx, model.StatusProcessing, model.StatusInTransit)
	if err != nil {
		return l.failed(res, fmt.Errorf("load awaiting orders: %w", err))
	}
	matches := correlate(l.strategy, token, candidates)
	for _, m := range matches {
		res.Candidates = append(res.Candidates, m.ID)
	}
	if len(matches) == 0 {
		return l.unmatched(res)
	}
	chosen := matches[0]
	if len(matches) > 1 {
		ambiguousMatches.Inc()
		l.log.Warnf("completion token %s matched %d orders %v, completing %s", token, len(matches), res.Candidates, chosen.ID)
		if l.bus != nil {
			l.bus.Publish(events.CorrelationAmbiguous{Token: token, Candidates: res.Candidates, Chosen: chosen.ID, Time: time.Now()})
		}
	}

	updated, err := l.orders.Update(ctx, chosen.ID, func(cur *model.Order) error {
		if !cur.Status.AwaitingCompletion() {
			return errNoLongerAwaiting
		}
		cur.Status = model.StatusCompleted
		return nil
	})
	if errors.Is(err, errNoLongerAwaiting) || errors.Is(err, store.ErrNotFound) {
		return l.unmatched(res)
	}
	if err != nil {
		return l.failed(res, fmt.Errorf("complete order %s: %w", chosen.ID, err))
	}

	short := model.ShortID(updated.ID)
	crate := 0
	if updated.CrateNumber != nil {
		crate = *updated.CrateNumber
	}
	if l.progress != nil {
		l.progress.Delete(short)
	}
	l.buf.Appendf(activity.CategorySuccess, "Order %s completed (crate %d)", short, crate)
	completionMessages.WithLabelValues(metrics.CompletionAck).Inc()
	l.record(metrics.CompletionRecord{OrderID: updated.ID, ShortID: short, Token: token, Outcome: metrics.CompletionAck, Candidates: len(matches), Time: time.Now()})
	if l.bus != nil {
		l.bus.Publish(events.OrderCompleted{OrderID: updated.ID, ShortID: short, Token: token, Crate: crate, Time: time.Now()})
	}
	res.OrderID = updated.ID
	res.Reply = protocol.ReplyAck
	return res
}

func (l *Listener) unmatched(res Result) Result {
	completionMessages.WithLabelValues(metrics.CompletionNotFound).Inc()
	l.log.Infof("completion token %s matched no awaiting order", res.Token)
	l.record(metrics.CompletionRecord{Token: res.Token, Outcome: metrics.CompletionNotFound, Time: time.Now()})
	if l.bus != nil {
		l.bus.Publish(events.CompletionUnmatched{Token: res.Token, Time: time.Now()})
	}
	res.Reply = protocol.ReplyNotFound
	return res
}

func (l *Listener) failed(res Result, err error) Result {
	completionMessages.WithLabelValues(metrics.CompletionError).Inc()
	l.buf.Appendf(activity.CategoryError, "Completion of %s failed: %v", res.Token, err)
	l.log.Errorf("completion %s: %v", res.Token, err)
	monitoring.CaptureException(err, map[string]string{"component": "completion", "token": res.Token})
	l.record(metrics.CompletionRecord{Token: res.Token, Outcome: metrics.CompletionError, Candidates: len(res.Candidates), Time: time.Now()})
	res.Reply = protocol.ReplyError
	res.Err = err
	return res
}

func (l *Listener) record(rec metrics.CompletionRecord) {
	r, ok := l.sink.(metrics.CompletionRecorder)
	if !ok {
		return
	}
	if err := r.RecordCompletion(rec); err != nil {
		l.log.Warnf("record completion: %v", err)
	}
}
