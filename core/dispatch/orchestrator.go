// Package dispatch turns an order into an assignment on the mapping service
// and relays control commands to the running simulation.
package dispatch

import (
	"context"
	"errors"
	"fmt"
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

// SimulationState reports whether the simulation is up.
type SimulationState interface {
	IsRunning() bool
}

// AssignmentSender delivers an assignment to the mapping service.
type AssignmentSender interface {
	SendAssignment(ctx context.Context, asg protocol.Assignment) error
}

// Summary is returned for a successful dispatch.
type Summary struct {
	OrderID       string   `json:"order_id"`
	ShortID       string   `json:"short_id"`
	CrateNumber   int      `json:"crate_number"`
	Motion        int      `json:"motion"`
	Priority      int      `json:"priority"`
	Products      []string `json:"products"`
	TotalProducts int      `json:"total_products"`
	Customer      string   `json:"customer"`
}

// Orchestrator dispatches orders.
type Orchestrator struct {
	sim      SimulationState
	orders   store.OrderStore
	sender   AssignmentSender
	progress progress.Tracker
	buf      *activity.Buffer
	sink     metrics.MetricsSink
	bus      eventbus.EventBus
	log      logger.Logger

	mappingAddr    string
	mappingTimeout time.Duration
}

// NewOrchestrator wires an orchestrator. tracker, sink, bus and log may be nil.
func NewOrchestrator(
	sim SimulationState,
	orders store.OrderStore,
	sender AssignmentSender,
	tracker progress.Tracker,
	buf *activity.Buffer,
	sink metrics.MetricsSink,
	bus eventbus.EventBus,
	log logger.Logger,
) *Orchestrator {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if buf == nil {
		buf = activity.NewBuffer(0)
	}
	o := &Orchestrator{
		sim:            sim,
		orders:         orders,
		sender:         sender,
		progress:       tracker,
		buf:            buf,
		sink:           sink,
		bus:            bus,
		log:            logger.OrNop(log),
		mappingTimeout: protocol.DefaultTimeout,
	}
	if a, ok := sender.(interface{ Addr() string }); ok {
		o.mappingAddr = a.Addr()
	}
	return o
}

// SetMappingEndpoint overrides the address and timeout quoted in hints.
func (o *Orchestrator) SetMappingEndpoint(addr string, timeout time.Duration) {
	o.mappingAddr = addr
	if timeout > 0 {
		o.mappingTimeout = timeout
	}
}

// DispatchOrder assigns the order to a crate chosen by priority and marks it
// Processing once the mapping service accepts. On any failure the order
// record is left as it was, except when persisting the accepted assignment
// itself fails.
func (o *Orchestrator) DispatchOrder(ctx context.Context, orderID string, priority int) (Summary, error) {
	start := time.Now()
	if !o.sim.IsRunning() {
		return Summary{}, o.fail(orderID, start, &Error{
			Kind:    KindNotRunning,
			Message: "simulation is not running",
			Hint:    "start the simulation before dispatching orders",
		})
	}

	order, err := o.orders.FindByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return Summary{}, o.fail(orderID, start, &Error{Kind: KindNotFound, Message: fmt.Sprintf("order %s not found", orderID)})
	}
	if err != nil {
		return Summary{}, o.fail(orderID, start, &Error{Kind: KindPersistence, Message: "load order", Err: err})
	}
	if len(order.Items) == 0 {
		return Summary{}, o.fail(orderID, start, &Error{
			Kind:    KindEmptyOrder,
			Message: fmt.Sprintf("order %s has no products", orderID),
			Hint:    "add at least one product to the order",
		})
	}
	if order.Status == model.StatusCompleted {
		return Summary{}, o.fail(orderID, start, &Error{Kind: KindAlreadyCompleted, Message: fmt.Sprintf("order %s is already completed", orderID)})
	}

	prio := model.NormalizePriority(priority)
	asg := protocol.Assignment{
		ShortID:       model.ShortID(order.ID),
		Crate:         model.CrateFor(prio),
		TotalProducts: order.TotalProducts(),
		Priority:      prio,
		Products:      order.ProductNames(),
	}

	rt := time.Now()
	err = o.sender.SendAssignment(ctx, asg)
	mappingRoundTrip.Observe(time.Since(rt).Seconds())
	if err != nil {
		return Summary{}, o.fail(orderID, start, fromProtocol(err, "mapping service", o.mappingAddr, o.mappingTimeout))
	}

	updated, err := o.orders.Update(ctx, order.ID, func(cur *model.Order) error {
		if cur.Status == model.StatusCompleted {
			return &Error{Kind: KindAlreadyCompleted, Message: fmt.Sprintf("order %s completed concurrently", cur.ID)}
		}
		cur.AssignCrate(asg.Crate, prio)
		return nil
	})
	if err != nil {
		var de *Error
		if !errors.As(err, &de) {
			de = &Error{Kind: KindPersistence, Message: fmt.Sprintf("mapping service accepted order %s but the record could not be updated", asg.ShortID), Err: err}
			monitoring.CaptureException(err, map[string]string{"component": "dispatch", "order_id": orderID})
		}
		return Summary{}, o.fail(orderID, start, de)
	}

	if o.progress != nil {
		o.progress.Init(asg.ShortID, asg.TotalProducts)
	}
	latency := time.Since(start)
	o.buf.Appendf(activity.CategorySuccess, "Order %s dispatched to crate %d (%d products)", asg.ShortID, asg.Crate, asg.TotalProducts)
	o.log.Infof("dispatched order %s to crate %d in %s", updated.ID, asg.Crate, latency)
	dispatchRequests.WithLabelValues(metrics.OutcomeAccepted).Inc()
	if err := o.sink.RecordDispatch(metrics.DispatchRecord{
		OrderID:  updated.ID,
		ShortID:  asg.ShortID,
		Crate:    asg.Crate,
		Priority: prio,
		Products: asg.TotalProducts,
		Outcome:  metrics.OutcomeAccepted,
		Latency:  latency,
		Time:     time.Now(),
	}); err != nil {
		o.log.Warnf("record dispatch: %v", err)
	}
	if o.bus != nil {
		o.bus.Publish(events.OrderDispatched{
			OrderID:  updated.ID,
			ShortID:  asg.ShortID,
			Crate:    asg.Crate,
			Priority: prio,
			Products: asg.Products,
			Total:    asg.TotalProducts,
			Latency:  latency,
			Time:     time.Now(),
		})
	}

	return Summary{
		OrderID:       updated.ID,
		ShortID:       asg.ShortID,
		CrateNumber:   asg.Crate,
		Motion:        asg.Crate,
		Priority:      prio,
		Products:      asg.Products,
		TotalProducts: asg.TotalProducts,
		Customer:      updated.Customer,
	}, nil
}

func (o *Orchestrator) fail(orderID string, start time.Time, de *Error) error {
	latency := time.Since(start)
	dispatchRequests.WithLabelValues(string(de.Kind)).Inc()
	msg := fmt.Sprintf("Dispatch of order %s failed: %s", orderID, de.Error())
	if de.Hint != "" {
		msg += " (" + de.Hint + ")"
	}
	o.buf.Append(msg, activity.CategoryError)
	o.log.Warnf("%s", msg)
	if err := o.sink.RecordDispatch(metrics.DispatchRecord{
		OrderID: orderID,
		Outcome: string(de.Kind),
		Latency: latency,
		Time:    time.Now(),
	}); err != nil {
		o.log.Warnf("record dispatch: %v", err)
	}
	if o.bus != nil {
		o.bus.Publish(events.DispatchFailed{OrderID: orderID, Kind: string(de.Kind), Err: de, Latency: latency, Time: time.Now()})
	}
	return de
}
