package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/whr-sorting/simbridge/core/metrics"
)

// PromSink records bridge activity in Prometheus metrics.
type PromSink struct {
	dispatches  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	completions *prometheus.CounterVec
	running     prometheus.Gauge
	exits       *prometheus.CounterVec
}

// NewPromSink registers bridge metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simbridge_dispatch_events_total",
		Help: "Dispatch attempts by outcome and crate",
	}, []string{"outcome", "crate"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simbridge_dispatch_latency_seconds",
		Help:    "Time from dispatch request to outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simbridge_completion_events_total",
		Help: "Completion notifications by outcome",
	}, []string{"outcome"})
	running := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simbridge_simulation_running",
		Help: "1 while the supervised simulation is running",
	})
	exits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simbridge_simulation_exits_total",
		Help: "Simulation exits by clean/failed",
	}, []string{"clean"})

	var err error
	if dispatches, err = register(reg, dispatches); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if completions, err = register(reg, completions); err != nil {
		return nil, err
	}
	if running, err = register(reg, running); err != nil {
		return nil, err
	}
	if exits, err = register(reg, exits); err != nil {
		return nil, err
	}
	return &PromSink{dispatches: dispatches, latency: latency, completions: completions, running: running, exits: exits}, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if exist, ok := are.ExistingCollector.(C); ok {
			return exist, nil
		}
	}
	return c, err
}

// RecordDispatch counts the attempt and observes its latency.
func (s *PromSink) RecordDispatch(rec coremetrics.DispatchRecord) error {
	crate := ""
	if rec.Crate > 0 {
		crate = strconv.Itoa(rec.Crate)
	}
	s.dispatches.WithLabelValues(rec.Outcome, crate).Inc()
	s.latency.WithLabelValues(rec.Outcome).Observe(rec.Latency.Seconds())
	return nil
}

// RecordCompletion counts a completion outcome.
func (s *PromSink) RecordCompletion(rec coremetrics.CompletionRecord) error {
	s.completions.WithLabelValues(rec.Outcome).Inc()
	return nil
}

// RecordSimulationState tracks the running gauge and exit counts.
func (s *PromSink) RecordSimulationState(rec coremetrics.SimulationRecord) error {
	if rec.Running {
		s.running.Set(1)
		return nil
	}
	s.running.Set(0)
	s.exits.WithLabelValues(strconv.FormatBool(rec.ExitCode == 0)).Inc()
	return nil
}
