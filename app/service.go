package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/whr-sorting/simbridge/config"
	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/core/completion"
	"github.com/whr-sorting/simbridge/core/dispatch"
	"github.com/whr-sorting/simbridge/core/events"
	coremetrics "github.com/whr-sorting/simbridge/core/metrics"
	coremon "github.com/whr-sorting/simbridge/core/monitoring"
	"github.com/whr-sorting/simbridge/core/progress"
	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/core/store"
	"github.com/whr-sorting/simbridge/core/supervisor"
	"github.com/whr-sorting/simbridge/infra/logger"
	"github.com/whr-sorting/simbridge/infra/metrics"
	"github.com/whr-sorting/simbridge/infra/monitoring"
	"github.com/whr-sorting/simbridge/infra/mqtt"
	"github.com/whr-sorting/simbridge/internal/eventbus"
	"github.com/whr-sorting/simbridge/internal/runstate"
)

// Service wires the bridge components around one supervised simulation.
type Service struct {
	Orders       store.OrderStore
	Activity     *activity.Buffer
	Progress     *progress.CacheTracker
	Supervisor   *supervisor.Manager
	Orchestrator *dispatch.Orchestrator
	Controller   *dispatch.Controller
	Listener     *completion.Listener

	cfg        *config.Config
	sink       coremetrics.MetricsSink
	bus        *eventbus.Bus[eventbus.Event]
	publisher  *mqtt.Publisher
	ops        *protocol.Server
	stopOps    context.CancelFunc
	log        logger.Logger
	closeStore func() error
	restoreMon func()
}

// New creates a Service from the configuration. Nothing listens or runs until
// Run is called.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	restore := coremon.Init(mon)

	orders, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		restore()
		return nil, err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = closeStore()
		restore()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	strategy, err := completion.ParseStrategy(cfg.Completion.Strategy)
	if err != nil {
		_ = closeStore()
		restore()
		return nil, err
	}

	buf := activity.NewBuffer(cfg.Activity.Capacity)
	buf.OnAppend(activity.MirrorTo(logger.New("activity")))
	tracker := progress.NewCacheTracker(cfg.Progress.TTL, 0)
	bus := eventbus.New()

	sim := supervisor.New(cfg.Simulation, buf, logger.New("supervisor"), bus)

	sender := protocol.NewAssignmentClient(cfg.Mapping.Addr(), cfg.Mapping.Timeout)
	orch := dispatch.NewOrchestrator(sim, orders, sender, tracker, buf, sink, bus, logger.New("dispatch"))
	orch.SetMappingEndpoint(cfg.Mapping.Addr(), cfg.Mapping.Timeout)

	ctrl := dispatch.NewController(sim, protocol.NewControlClient(cfg.Control.Addr(), cfg.Control.Timeout), buf, logger.New("control"))

	lis := completion.New(cfg.Completion.Addr(), orders, strategy, tracker, buf, sink, bus, logger.New("completion"))
	lis.SetTimeouts(cfg.Completion.IdleTimeout, cfg.Completion.FlushWindow)

	svc := &Service{
		Orders:       orders,
		Activity:     buf,
		Progress:     tracker,
		Supervisor:   sim,
		Orchestrator: orch,
		Controller:   ctrl,
		Listener:     lis,
		cfg:          cfg,
		sink:         sink,
		bus:          bus,
		log:          logg,
		closeStore:   closeStore,
		restoreMon:   restore,
	}

	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewPublisher(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Run starts the listeners and, when startSimulation is set, the simulation.
// It blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context, startSimulation bool) error {
	if err := s.Start(ctx, startSimulation); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Start is the non-blocking part of Run.
func (s *Service) Start(ctx context.Context, startSimulation bool) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.publisher != nil {
		s.publisher.Run(ctx, s.bus)
	}
	s.trackRunState(ctx)

	if err := s.Listener.Start(ctx); err != nil {
		return fmt.Errorf("completion listener: %w", err)
	}
	opsCtx, stopOps := context.WithCancel(ctx)
	ops := protocol.NewServer("ops endpoint", s.handleOps, logger.New("ops"))
	if err := ops.Start(opsCtx, s.cfg.Ops.Addr()); err != nil {
		stopOps()
		return err
	}
	s.ops, s.stopOps = ops, stopOps
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if startSimulation {
		res, err := s.Supervisor.Start(ctx)
		if err != nil {
			var cfgErr *supervisor.ConfigurationError
			if errors.As(err, &cfgErr) {
				s.log.Errorf("%v (%s)", err, cfgErr.Hint())
			}
			return fmt.Errorf("start simulation: %w", err)
		}
		s.log.Infof("%s", res.Message)
	}
	return nil
}

// OpsAddr returns the address of the ops endpoint once Start has run.
func (s *Service) OpsAddr() string {
	if s.ops == nil {
		return ""
	}
	return s.ops.Addr()
}

// trackRunState mirrors supervisor transitions into the run-state file. CLI
// commands read it when the ops endpoint does not answer.
func (s *Service) trackRunState(ctx context.Context) {
	path := s.cfg.StateFile
	if path == "" {
		return
	}
	sub := s.bus.Subscribe()
	go func() {
		defer s.bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, ok := ev.(events.SimulationStateChanged)
				if !ok {
					continue
				}
				st := runstate.State{ServePID: os.Getpid(), Started: e.Time}
				if e.Running {
					st.SimulationPID = e.PID
				}
				if err := runstate.Write(path, st); err != nil {
					s.log.Warnf("run-state: %v", err)
				}
			}
		}
	}()
}

// Close stops the simulation and releases every resource. It is safe to call
// once after a failed Start.
func (s *Service) Close() error {
	var errs []error
	if s.ops != nil {
		s.stopOps()
		s.ops.Wait()
	}
	if s.Supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Simulation.StopGrace+5*time.Second)
		if err := s.Supervisor.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
		cancel()
	}
	if s.Listener != nil {
		_ = s.Listener.Close()
	}
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.cfg.StateFile != "" {
		if err := runstate.Remove(s.cfg.StateFile); err != nil {
			errs = append(errs, fmt.Errorf("run-state: %w", err))
		}
	}
	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	if s.restoreMon != nil {
		s.restoreMon()
	}
	return errors.Join(errs...)
}
