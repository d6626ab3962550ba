package events

import "time"

// SimulationStateChanged reports supervisor lifecycle transitions. ExitCode is
// only meaningful when Running is false.
type SimulationStateChanged struct {
	Running  bool
	PID      int
	ExitCode int
	Message  string
	Time     time.Time
}
