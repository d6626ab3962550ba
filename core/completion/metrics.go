package completion

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionMessages *prometheus.CounterVec
	ambiguousMatches   prometheus.Counter
	activeConnections  prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Gauge) {
	msgs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_messages_total",
			Help: "Completion notifications by reply",
		},
		[]string{"result"},
	)
	amb := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "completion_correlation_ambiguous_total",
			Help: "Completion tokens that matched more than one awaiting order",
		},
	)
	conns := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "completion_connections_active",
			Help: "Open connections on the completion listener",
		},
	)
	return msgs, amb, conns
}

func init() {
	completionMessages, ambiguousMatches, activeConnections = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers completion metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(completionMessages, ambiguousMatches, activeConnections)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	completionMessages, ambiguousMatches, activeConnections = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
