package model

import "time"

// HistoryOutcome is the final or current state of an applied resolution.
type HistoryOutcome string

const (
	OutcomeSuccessful HistoryOutcome = "successful"
	OutcomeFailed     HistoryOutcome = "failed"
	OutcomeReverted   HistoryOutcome = "reverted"
)

func (o HistoryOutcome) Valid() bool {
	return o == OutcomeSuccessful || o == OutcomeFailed || o == OutcomeReverted
}

// ResolutionMetrics measure an applied resolution.
type ResolutionMetrics struct {
	TimeToResolve             time.Duration `json:"time_to_resolve"`
	CostSavings               float64       `json:"cost_savings"`
	EfficiencyGain            float64       `json:"efficiency_gain"`
	CustomerSatisfactionDelta float64       `json:"customer_satisfaction_delta"`
	AffectedTeamMembers       int           `json:"affected_team_members"`
}

// ConflictResolutionHistory is an entry of the append-only resolution log.
// Only Outcome and RevertedAt change, and only from successful to reverted.
type ConflictResolutionHistory struct {
	ID           string             `json:"id"`
	ConflictID   string             `json:"conflict_id"`
	ResolutionID string             `json:"resolution_id"`
	ConflictType ConflictType       `json:"conflict_type"`
	Strategy     ResolutionStrategy `json:"strategy"`
	AppliedBy    string             `json:"applied_by"`
	AppliedAt    time.Time          `json:"applied_at"`
	Outcome      HistoryOutcome     `json:"outcome"`
	Metrics      ResolutionMetrics  `json:"metrics"`
	Notes        string             `json:"notes,omitempty"`
	RevertedAt   *time.Time         `json:"reverted_at,omitempty"`
}
