package mapsim

import (
	"context"
	"fmt"
	"time"

	"github.com/whr-sorting/simbridge/core/logger"
	"github.com/whr-sorting/simbridge/core/protocol"
)

// Notifier defaults.
const (
	DefaultNotifyAttempts = 3
	DefaultNotifyTimeout  = 5 * time.Second
	DefaultNotifyPause    = time.Second
)

// Notifier reports completed orders to the bridge's completion listener.
type Notifier struct {
	Addr     string
	Attempts int
	Timeout  time.Duration
	Pause    time.Duration
	Log      logger.Logger
}

// Notify sends COMPLETED:<id> until the listener answers ACK or NOT_FOUND,
// both of which count as delivered.
func (n *Notifier) Notify(ctx context.Context, id string) error {
	attempts := n.Attempts
	if attempts <= 0 {
		attempts = DefaultNotifyAttempts
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	pause := n.Pause
	if pause <= 0 {
		pause = DefaultNotifyPause
	}
	log := logger.OrNop(n.Log)
	cli := protocol.NewClient(n.Addr, timeout)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := cli.Send(ctx, protocol.FormatCompletion(id))
		switch {
		case err != nil:
			lastErr = err
		case resp == protocol.ReplyAck:
			log.Infof("completion of %s acknowledged", id)
			return nil
		case resp == protocol.ReplyNotFound:
			log.Warnf("bridge could not find order %s", id)
			return nil
		default:
			lastErr = fmt.Errorf("unexpected reply %q", resp)
		}
		log.Warnf("notify %s attempt %d/%d: %v", id, attempt, attempts, lastErr)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
	return fmt.Errorf("notify %s after %d attempts: %w", id, attempts, lastErr)
}
