package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchRequests *prometheus.CounterVec
	mappingRoundTrip prometheus.Histogram
	controlCommands  *prometheus.CounterVec
	controlRoundTrip prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec, prometheus.Histogram) {
	req := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_orders_total",
			Help: "Dispatch attempts by result",
		},
		[]string{"result"},
	)
	rt := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_mapping_round_trip_seconds",
			Help:    "Time from connecting to the mapping service to receiving its reply",
			Buckets: prometheus.DefBuckets,
		},
	)
	ctl := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_commands_total",
			Help: "Simulation control commands by command and result",
		},
		[]string{"command", "result"},
	)
	ctlRT := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "control_round_trip_seconds",
			Help:    "Round trip of simulation control commands",
			Buckets: prometheus.DefBuckets,
		},
	)
	return req, rt, ctl, ctlRT
}

func init() {
	dispatchRequests, mappingRoundTrip, controlCommands, controlRoundTrip = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchRequests, mappingRoundTrip, controlCommands, controlRoundTrip)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchRequests, mappingRoundTrip, controlCommands, controlRoundTrip = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
