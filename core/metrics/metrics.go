package metrics

import "time"

// Dispatch outcomes. Failures use the dispatch error kind as outcome.
const (
	OutcomeAccepted = "accepted"
)

// Completion outcomes, matching the reply sent to the notifier.
const (
	CompletionAck       = "ack"
	CompletionNotFound  = "not_found"
	CompletionError     = "error"
	CompletionAmbiguous = "ambiguous"
)

// DispatchRecord describes one dispatch attempt.
type DispatchRecord struct {
	OrderID  string
	ShortID  string
	Crate    int
	Priority int
	Products int
	Outcome  string
	Latency  time.Duration
	Time     time.Time
}

// MetricsSink records dispatch attempts for observability purposes.
type MetricsSink interface {
	RecordDispatch(rec DispatchRecord) error
}

// CompletionRecord describes how a completion notification was handled.
type CompletionRecord struct {
	OrderID    string
	ShortID    string
	Token      string
	Outcome    string
	Candidates int
	Time       time.Time
}

// CompletionRecorder records completion reconciliation outcomes.
type CompletionRecorder interface {
	RecordCompletion(rec CompletionRecord) error
}

// SimulationRecord is a simulation lifecycle transition.
type SimulationRecord struct {
	Running  bool
	PID      int
	ExitCode int
	Time     time.Time
}

// SimulationRecorder records simulation lifecycle transitions.
type SimulationRecorder interface {
	RecordSimulationState(rec SimulationRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchRecord) error          { return nil }
func (NopSink) RecordCompletion(CompletionRecord) error      { return nil }
func (NopSink) RecordSimulationState(SimulationRecord) error { return nil }
