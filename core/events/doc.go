// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - OptimizationEvent: an optimization pass finished
//   - ConflictEvent: a conflict was detected
//   - ResolutionEvent: a resolution changed state
//   - NotificationEvent: a team member acknowledged, or failed to acknowledge, its schedule
package events
