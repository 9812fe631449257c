// Package metrics defines the sinks that record scheduler activity.
//
// Every sink implements MetricsSink. Optional recorder interfaces cover
// conflicts, resolutions, assignments and team notifications; callers type
// assert for them. Sinks are built from configuration through the factory
// registry and combined in a MultiSink when more than one is configured.
package metrics
