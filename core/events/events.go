package events

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

const (
	TypeOptimization = "optimization"
	TypeConflict     = "conflict"
	TypeResolution   = "resolution"
	TypeNotification = "notification"
)

// OptimizationEvent is published after every optimization pass.
type OptimizationEvent struct {
	Assigned   int
	Unassigned int
	Conflicts  int
	Duration   time.Duration
	Metrics    model.OptimizationMetrics
	Err        error
}

func (OptimizationEvent) EventType() string { return TypeOptimization }

// ConflictEvent is published for each detected conflict.
type ConflictEvent struct {
	Conflict model.SchedulingConflict
}

func (ConflictEvent) EventType() string { return TypeConflict }

// Resolution actions.
const (
	ActionProposed = "proposed"
	ActionApplied  = "applied"
	ActionFailed   = "failed"
	ActionReverted = "reverted"
	ActionRejected = "rejected"
)

// ResolutionEvent is emitted when a resolution changes state.
type ResolutionEvent struct {
	Action       string
	ResolutionID string
	HistoryID    string
	ConflictType model.ConflictType
	Strategy     model.ResolutionStrategy
	Err          error
}

func (ResolutionEvent) EventType() string { return TypeResolution }

// NotificationEvent is published for each schedule sent to a team member.
type NotificationEvent struct {
	TeamID       string
	Date         string
	Jobs         int
	Acknowledged bool
	Err          error
	Latency      time.Duration
}

func (NotificationEvent) EventType() string { return TypeNotification }
