package model

import (
	"fmt"
	"time"
)

// Priority ranks how urgently a job must be served.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities from 1 (low) to 4 (urgent). Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

// Job is a time-boxed, geo-located installation visit.
type Job struct {
	ID                      string      `json:"id"`
	CustomerID              string      `json:"customer_id,omitempty"`
	Address                 string      `json:"address,omitempty"`
	Region                  string      `json:"region,omitempty"`
	Location                *Coordinate `json:"location,omitempty"`
	ScheduledStart          time.Time   `json:"scheduled_start"`
	DurationMinutes         int         `json:"duration_minutes"`
	Priority                Priority    `json:"priority"`
	RequiredSpecializations []string    `json:"required_specializations,omitempty"`
	RequiresAssistant       bool        `json:"requires_assistant,omitempty"`
	Deadline                *time.Time  `json:"deadline,omitempty"`

	// Current assignment, empty when unassigned.
	LeadID      string `json:"lead_id,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`
}

// Duration returns the on-site duration.
func (j Job) Duration() time.Duration {
	return time.Duration(j.DurationMinutes) * time.Minute
}

// End returns the scheduled end time.
func (j Job) End() time.Time { return j.ScheduledStart.Add(j.Duration()) }

// Window returns the scheduled time window.
func (j Job) Window() TimeWindow { return TimeWindow{Start: j.ScheduledStart, End: j.End()} }

// Date returns the calendar date of the scheduled start.
func (j Job) Date() string { return DateKey(j.ScheduledStart) }

// Validate checks the job fields. A missing location is not a validation
// error; it is reported per job during optimization.
func (j Job) Validate() error {
	if j.ID == "" {
		return Invalid("job.id", "is required")
	}
	if j.ScheduledStart.IsZero() {
		return Invalid("job."+j.ID+".scheduled_start", "is required")
	}
	if j.DurationMinutes <= 0 {
		return Invalid("job."+j.ID+".duration_minutes", "must be positive, got %d", j.DurationMinutes)
	}
	if !j.Priority.Valid() {
		return Invalid("job."+j.ID+".priority", "unknown priority %q", j.Priority)
	}
	if j.Location != nil {
		if err := j.Location.Validate(); err != nil {
			return Invalid("job."+j.ID+".location", "%v", err)
		}
	}
	if j.AssistantID != "" && j.AssistantID == j.LeadID {
		return Invalid("job."+j.ID+".assistant_id", "assistant cannot be the lead")
	}
	return nil
}

func (j Job) String() string {
	return fmt.Sprintf("%s(%s %s)", j.ID, j.Priority, j.ScheduledStart.Format(time.RFC3339))
}
