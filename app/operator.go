package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/whr-sorting/simbridge/config"
	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/dispatch"
	coremetrics "github.com/whr-sorting/simbridge/core/metrics"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/store"
	"github.com/whr-sorting/simbridge/infra/logger"
	"github.com/whr-sorting/simbridge/internal/runstate"
)

// ErrMemoryStore is returned by NewOperator when orders would not outlive the
// command.
var ErrMemoryStore = errors.New("one-shot commands need a persistent store backend")

// Operator backs dispatch and control when no serve process answers on the
// ops endpoint. It shares the order store with serve and reads the simulation
// state from the run-state file. Progress is not tracked here; completions are
// only reconciled by serve.
type Operator struct {
	Orders       store.OrderStore
	Activity     *activity.Buffer
	Orchestrator *dispatch.Orchestrator
	Controller   *dispatch.Controller

	closeStore func() error
	sink       coremetrics.MetricsSink
}

// NewOperator opens the store and wires dispatch and control.
func NewOperator(ctx context.Context, cfg *config.Config) (*Operator, error) {
	if cfg.Store.Backend == "memory" {
		return nil, ErrMemoryStore
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	orders, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	buf := activity.NewBuffer(cfg.Activity.Capacity)
	buf.OnAppend(activity.MirrorTo(logger.New("activity")))
	probe := runstate.Probe{Path: cfg.StateFile}

	orch := dispatch.NewOrchestrator(probe, orders,
		protocol.NewAssignmentClient(cfg.Mapping.Addr(), cfg.Mapping.Timeout),
		nil, buf, sink, nil, logger.New("dispatch"))
	orch.SetMappingEndpoint(cfg.Mapping.Addr(), cfg.Mapping.Timeout)
	ctrl := dispatch.NewController(probe,
		protocol.NewControlClient(cfg.Control.Addr(), cfg.Control.Timeout),
		buf, logger.New("control"))

	return &Operator{
		Orders:       orders,
		Activity:     buf,
		Orchestrator: orch,
		Controller:   ctrl,
		closeStore:   closeStore,
		sink:         sink,
	}, nil
}

// Close releases the store and metrics sinks.
func (o *Operator) Close() error {
	if c, ok := o.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return o.closeStore()
}
