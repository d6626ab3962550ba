// Package events defines the bridge events emitted on the event bus.
//
// Available event types:
//   - OrderDispatched: an assignment was accepted by the mapping service
//   - DispatchFailed: a dispatch attempt was rejected or could not be delivered
//   - OrderCompleted: a completion notification was reconciled onto an order
//   - CompletionUnmatched: a completion token matched no awaiting order
//   - CorrelationAmbiguous: a completion token matched several awaiting orders
//   - SimulationStateChanged: the supervised simulation started or exited
package events
