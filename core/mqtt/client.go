// Package mqtt defines the messages exchanged with field teams and the
// publisher used to send them.
package mqtt

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// ScheduledJob is one job of a member's day schedule.
type ScheduledJob struct {
	JobID         string            `json:"job_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Role          model.Role        `json:"role"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	Location      *model.Coordinate `json:"location,omitempty"`
	PreviousJobID string            `json:"previous_job_id,omitempty"`
	TravelMinutes int               `json:"travel_minutes"`
}

// Schedule is the day plan sent to one team member.
type Schedule struct {
	TeamID string         `json:"team_id"`
	Date   string         `json:"date"`
	Jobs   []ScheduledJob `json:"jobs"`
}

// Publisher sends schedules to team members and waits for their
// acknowledgment. It also forwards resolution history entries.
type Publisher interface {
	// SendSchedule publishes s and returns the command identifier used to
	// track the acknowledgment.
	SendSchedule(s Schedule) (commandID string, err error)

	// WaitForAck waits for an acknowledgment of commandID or until the
	// timeout expires. The result is false when the member declined.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)

	// PublishHistory forwards a history entry to the history topic.
	PublishHistory(h model.ConflictResolutionHistory) error
}
