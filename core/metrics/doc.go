// Package metrics defines the sink interfaces used to record bridge activity:
// dispatch attempts, completion reconciliation and simulation lifecycle.
// Sinks like PromSink and InfluxSink live in infra/metrics and can be
// combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
