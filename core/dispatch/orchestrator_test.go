package dispatch

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/events"
	"github.com/whr-sorting/simbridge/core/metrics"
	"github.com/whr-sorting/simbridge/core/model"
	"github.com/whr-sorting/simbridge/core/progress"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/store"
	"github.com/whr-sorting/simbridge/internal/eventbus"
)

type fakeSim struct{ running bool }

func (f fakeSim) IsRunning() bool { return f.running }

type fakeSender struct {
	err  error
	sent []protocol.Assignment
}

func (f *fakeSender) SendAssignment(_ context.Context, asg protocol.Assignment) error {
	f.sent = append(f.sent, asg)
	return f.err
}

type recordingSink struct {
	records []metrics.DispatchRecord
}

func (r *recordingSink) RecordDispatch(rec metrics.DispatchRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type failingUpdateStore struct {
	store.OrderStore
}

func (failingUpdateStore) Update(context.Context, string, store.UpdateFunc) (model.Order, error) {
	return model.Order{}, errors.New("disk full")
}

const orderID = "665f1c2ab4e9d0a1ffee1234"

func seedOrder(t *testing.T, items ...model.Item) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.Save(context.Background(), model.Order{
		ID:       orderID,
		Customer: "Ada",
		Items:    items,
		Status:   model.StatusPending,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func newOrchestrator(sim SimulationState, st store.OrderStore, sender AssignmentSender) (*Orchestrator, *activity.Buffer, *progress.CacheTracker, *recordingSink) {
	buf := activity.NewBuffer(20)
	tr := progress.NewCacheTracker(time.Hour, time.Minute)
	sink := &recordingSink{}
	return NewOrchestrator(sim, st, sender, tr, buf, sink, nil, nil), buf, tr, sink
}

func assertUnchanged(t *testing.T, st store.OrderStore) {
	t.Helper()
	o, err := st.FindByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if o.Status != model.StatusPending || o.CrateNumber != nil {
		t.Fatalf("order mutated on failure: %s crate=%v", o.Status, o.CrateNumber)
	}
}

func TestDispatchOrder_Success(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	st := seedOrder(t, model.Item{Name: "apple", Quantity: 2}, model.Item{Name: "pear", Quantity: 1})
	sender := &fakeSender{}
	orch, buf, tr, sink := newOrchestrator(fakeSim{running: true}, st, sender)
	bus := eventbus.New()
	sub := bus.Subscribe()
	orch.bus = bus

	sum, err := orch.DispatchOrder(context.Background(), orderID, 1)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sum.ShortID != "FFEE1234" || sum.CrateNumber != 1 || sum.Motion != 1 || sum.TotalProducts != 3 || sum.Customer != "Ada" {
		t.Fatalf("unexpected summary %#v", sum)
	}
	if len(sender.sent) != 1 || sender.sent[0].Encode() != "UPDATE:FFEE1234:1:3:1:apple,pear" {
		t.Fatalf("unexpected assignment %#v", sender.sent)
	}
	o, _ := st.FindByID(context.Background(), orderID)
	if o.Status != model.StatusProcessing || o.CrateNumber == nil || *o.CrateNumber != 1 || o.Priority != 1 {
		t.Fatalf("order not updated: %#v", o)
	}
	if p, ok := tr.Get("FFEE1234"); !ok || p.Expected != 3 {
		t.Fatalf("progress not initialised: %#v", p)
	}
	if logs := buf.Logs(activity.CategorySuccess); len(logs) != 1 || !strings.Contains(logs[0].Message, "FFEE1234") {
		t.Fatalf("missing success entry: %#v", logs)
	}
	if len(sink.records) != 1 || sink.records[0].Outcome != metrics.OutcomeAccepted {
		t.Fatalf("sink not updated: %#v", sink.records)
	}
	if v := testutil.ToFloat64(dispatchRequests.WithLabelValues(metrics.OutcomeAccepted)); v != 1 {
		t.Errorf("dispatchRequests expected 1 got %f", v)
	}
	if count := testutil.CollectAndCount(mappingRoundTrip); count == 0 {
		t.Errorf("mappingRoundTrip not updated")
	}
	select {
	case ev := <-sub:
		if d, ok := ev.(events.OrderDispatched); !ok || d.Crate != 1 {
			t.Fatalf("unexpected event %#v", ev)
		}
	default:
		t.Fatalf("no dispatch event published")
	}
}

func TestDispatchOrder_NormalPriorityUsesCrateTwo(t *testing.T) {
	st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
	sender := &fakeSender{}
	orch, _, _, _ := newOrchestrator(fakeSim{running: true}, st, sender)
	sum, err := orch.DispatchOrder(context.Background(), orderID, 7)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sum.CrateNumber != 2 || sum.Priority != 0 || sender.sent[0].Priority != 0 {
		t.Fatalf("unexpected routing %#v", sum)
	}
}

func TestDispatchOrder_NotRunning(t *testing.T) {
	st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
	sender := &fakeSender{}
	orch, buf, _, _ := newOrchestrator(fakeSim{}, st, sender)
	_, err := orch.DispatchOrder(context.Background(), orderID, 1)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning got %v", err)
	}
	if HintOf(err) == "" {
		t.Fatalf("expected hint")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no assignment should be sent")
	}
	if len(buf.Logs(activity.CategoryError)) != 1 {
		t.Fatalf("expected error entry")
	}
	assertUnchanged(t, st)
}

func TestDispatchOrder_NotFound(t *testing.T) {
	sender := &fakeSender{}
	orch, _, _, _ := newOrchestrator(fakeSim{running: true}, store.NewMemoryStore(), sender)
	_, err := orch.DispatchOrder(context.Background(), "missing", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no assignment should be sent")
	}
}

func TestDispatchOrder_EmptyOrder(t *testing.T) {
	st := seedOrder(t)
	sender := &fakeSender{}
	orch, _, _, _ := newOrchestrator(fakeSim{running: true}, st, sender)
	_, err := orch.DispatchOrder(context.Background(), orderID, 1)
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no network call expected for empty order")
	}
	assertUnchanged(t, st)
}

func TestDispatchOrder_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
	orch, _, tr, sink := newOrchestrator(fakeSim{running: true}, st, protocol.NewAssignmentClient(addr, time.Second))
	_, err = orch.DispatchOrder(context.Background(), orderID, 1)
	if KindOf(err) != KindConnectionFailed {
		t.Fatalf("expected connection failure got %v", err)
	}
	if !strings.Contains(HintOf(err), addr) {
		t.Fatalf("hint should name the mapping address: %q", HintOf(err))
	}
	assertUnchanged(t, st)
	if _, ok := tr.Get("FFEE1234"); ok {
		t.Fatalf("progress must not be initialised on failure")
	}
	if len(sink.records) != 1 || sink.records[0].Outcome != string(KindConnectionFailed) {
		t.Fatalf("failure not recorded: %#v", sink.records)
	}
}

func TestDispatchOrder_ProtocolErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{&protocol.Error{Kind: protocol.KindTimeout, Addr: "x"}, KindTimeout},
		{&protocol.Error{Kind: protocol.KindUnexpectedResponse, Addr: "x", Response: "ERROR_INVALID_FORMAT"}, KindUnexpectedResponse},
	}
	for _, c := range cases {
		st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
		orch, _, _, _ := newOrchestrator(fakeSim{running: true}, st, &fakeSender{err: c.err})
		_, err := orch.DispatchOrder(context.Background(), orderID, 0)
		if KindOf(err) != c.kind {
			t.Fatalf("expected %s got %v", c.kind, err)
		}
		if HintOf(err) == "" {
			t.Fatalf("expected hint for %s", c.kind)
		}
		assertUnchanged(t, st)
	}
}

func TestDispatchOrder_AlreadyCompleted(t *testing.T) {
	st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
	_, _ = st.Update(context.Background(), orderID, func(o *model.Order) error {
		o.Status = model.StatusCompleted
		return nil
	})
	sender := &fakeSender{}
	orch, _, _, _ := newOrchestrator(fakeSim{running: true}, st, sender)
	_, err := orch.DispatchOrder(context.Background(), orderID, 1)
	if KindOf(err) != KindAlreadyCompleted {
		t.Fatalf("expected already completed got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("completed orders must not be re-sent")
	}
}

func TestDispatchOrder_PersistenceFailure(t *testing.T) {
	st := seedOrder(t, model.Item{Name: "apple", Quantity: 1})
	orch, _, _, _ := newOrchestrator(fakeSim{running: true}, failingUpdateStore{st}, &fakeSender{})
	_, err := orch.DispatchOrder(context.Background(), orderID, 1)
	if KindOf(err) != KindPersistence {
		t.Fatalf("expected persistence failure got %v", err)
	}
}
