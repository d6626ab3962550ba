package events

import "time"

// OrderDispatched is published once the mapping service accepted an assignment
// and the order record moved to Processing.
type OrderDispatched struct {
	OrderID  string
	ShortID  string
	Crate    int
	Priority int
	Products []string
	Total    int
	Latency  time.Duration
	Time     time.Time
}

// DispatchFailed is published when a dispatch attempt ends in an error.
type DispatchFailed struct {
	OrderID string
	Kind    string
	Err     error
	Latency time.Duration
	Time    time.Time
}

// OrderCompleted is published when a completion token was matched and the
// order record moved to Completed.
type OrderCompleted struct {
	OrderID string
	ShortID string
	Token   string
	Crate   int
	Time    time.Time
}

// CompletionUnmatched is published when no awaiting order matched the token.
type CompletionUnmatched struct {
	Token string
	Time  time.Time
}

// CorrelationAmbiguous is published when more than one awaiting order matched.
// Chosen is the order that was completed.
type CorrelationAmbiguous struct {
	Token      string
	Candidates []string
	Chosen     string
	Time       time.Time
}
