package metrics

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// OptimizationRecord summarises one optimization pass.
type OptimizationRecord struct {
	Assigned             int
	Unassigned           int
	Conflicts            int
	Duration             time.Duration
	TotalTravelDistance  float64
	TotalTravelTime      int
	TeamUtilization      float64
	GeographicEfficiency float64
	Failed               bool
	Time                 time.Time
}

// MetricsSink records optimization passes for observability purposes.
type MetricsSink interface {
	RecordOptimization(rec OptimizationRecord) error
}

// ConflictRecord is a detected scheduling conflict.
type ConflictRecord struct {
	Type           model.ConflictType
	Severity       model.Severity
	Date           string
	AutoResolvable bool
	Time           time.Time
}

// ConflictRecorder records detected conflicts.
type ConflictRecorder interface {
	RecordConflict(rec ConflictRecord) error
}

// ResolutionRecord captures a resolution lifecycle step.
type ResolutionRecord struct {
	Action       string
	ConflictType model.ConflictType
	Strategy     model.ResolutionStrategy
	Failed       bool
	Time         time.Time
}

// ResolutionRecorder records resolution proposals, applications and reverts.
type ResolutionRecorder interface {
	RecordResolution(rec ResolutionRecord) error
}

// AssignmentRecorder records the committed assignments of a pass.
type AssignmentRecorder interface {
	RecordAssignments(as []model.OptimizedAssignment) error
}

// NotificationRecord is the outcome of sending a day schedule to a member.
type NotificationRecord struct {
	TeamID       string
	Date         string
	Jobs         int
	Acknowledged bool
	Latency      time.Duration
	Error        string
	Time         time.Time
}

// NotificationRecorder records schedule notifications.
type NotificationRecorder interface {
	RecordNotification(rec NotificationRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOptimization(OptimizationRecord) error         { return nil }
func (NopSink) RecordConflict(ConflictRecord) error                 { return nil }
func (NopSink) RecordResolution(ResolutionRecord) error             { return nil }
func (NopSink) RecordAssignments([]model.OptimizedAssignment) error { return nil }
func (NopSink) RecordNotification(NotificationRecord) error         { return nil }
