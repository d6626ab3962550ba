package metrics

import (
	"context"
	"time"

	"github.com/whr-sorting/simbridge/core/events"
	coremetrics "github.com/whr-sorting/simbridge/core/metrics"
	"github.com/whr-sorting/simbridge/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events that are not recorded at their origin. It stops when the context is
// canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.SimulationStateChanged:
					if r, ok := sink.(coremetrics.SimulationRecorder); ok {
						_ = r.RecordSimulationState(coremetrics.SimulationRecord{
							Running:  e.Running,
							PID:      e.PID,
							ExitCode: e.ExitCode,
							Time:     e.Time,
						})
					}
				case events.CorrelationAmbiguous:
					if r, ok := sink.(coremetrics.CompletionRecorder); ok {
						_ = r.RecordCompletion(coremetrics.CompletionRecord{
							OrderID:    e.Chosen,
							Token:      e.Token,
							Outcome:    coremetrics.CompletionAmbiguous,
							Candidates: len(e.Candidates),
							Time:       time.Now(),
						})
					}
				}
			}
		}
	}()
}
