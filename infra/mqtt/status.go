package mqtt

import (
	"context"
	"time"

	"github.com/whr-sorting/simbridge/core/events"
	"github.com/whr-sorting/simbridge/core/model"
	"github.com/whr-sorting/simbridge/internal/eventbus"
)

// OrderStatus is the payload published on <prefix>/orders/<short id>/status.
type OrderStatus struct {
	OrderID  string    `json:"order_id"`
	ShortID  string    `json:"short_id"`
	Status   string    `json:"status"`
	Crate    int       `json:"crate,omitempty"`
	Priority int       `json:"priority,omitempty"`
	Products []string  `json:"products,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// SimulationStatus is the payload published on <prefix>/simulation/status.
type SimulationStatus struct {
	Running  bool      `json:"running"`
	PID      int       `json:"pid,omitempty"`
	ExitCode int       `json:"exit_code"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// CompletionNotice is published on <prefix>/completion/unmatched and
// <prefix>/completion/ambiguous.
type CompletionNotice struct {
	Token      string    `json:"token"`
	Candidates []string  `json:"candidates,omitempty"`
	Chosen     string    `json:"chosen,omitempty"`
	Time       time.Time `json:"time"`
}

// PublishEvent maps a bus event onto its topic. Unknown events are ignored.
func (p *Publisher) PublishEvent(ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.OrderDispatched:
		return p.PublishJSON(p.Topic("orders", e.ShortID, "status"), OrderStatus{
			OrderID:  e.OrderID,
			ShortID:  e.ShortID,
			Status:   string(model.StatusProcessing),
			Crate:    e.Crate,
			Priority: e.Priority,
			Products: e.Products,
			Time:     e.Time,
		})
	case events.DispatchFailed:
		short := model.ShortID(e.OrderID)
		msg := e.Kind
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return p.PublishJSON(p.Topic("orders", short, "status"), OrderStatus{
			OrderID: e.OrderID,
			ShortID: short,
			Status:  "dispatch_failed",
			Error:   msg,
			Time:    e.Time,
		})
	case events.OrderCompleted:
		return p.PublishJSON(p.Topic("orders", e.ShortID, "status"), OrderStatus{
			OrderID: e.OrderID,
			ShortID: e.ShortID,
			Status:  string(model.StatusCompleted),
			Crate:   e.Crate,
			Time:    e.Time,
		})
	case events.CompletionUnmatched:
		return p.PublishJSON(p.Topic("completion", "unmatched"), CompletionNotice{Token: e.Token, Time: e.Time})
	case events.CorrelationAmbiguous:
		return p.PublishJSON(p.Topic("completion", "ambiguous"), CompletionNotice{
			Token:      e.Token,
			Candidates: e.Candidates,
			Chosen:     e.Chosen,
			Time:       e.Time,
		})
	case events.SimulationStateChanged:
		return p.PublishJSON(p.Topic("simulation", "status"), SimulationStatus{
			Running:  e.Running,
			PID:      e.PID,
			ExitCode: e.ExitCode,
			Message:  e.Message,
			Time:     e.Time,
		})
	}
	return nil
}

// Run subscribes to bus and publishes events in the background until ctx is
// canceled or the bus is closed.
func (p *Publisher) Run(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := p.PublishEvent(ev); err != nil {
					p.log.Warnf("publish event %T: %v", ev, err)
				}
			}
		}
	}()
}
