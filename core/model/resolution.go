package model

import "time"

// ResolutionStrategy is how a resolution changes the snapshot.
type ResolutionStrategy string

const (
	StrategyReassign ResolutionStrategy = "reassign"
	StrategyManual   ResolutionStrategy = "manual"
	StrategyUnassign ResolutionStrategy = "unassign"
)

func (s ResolutionStrategy) Valid() bool {
	return s == StrategyReassign || s == StrategyManual || s == StrategyUnassign
}

// ResolutionState tracks a conflict through its resolution lifecycle.
type ResolutionState string

const (
	StateDetected          ResolutionState = "detected"
	StateProposalGenerated ResolutionState = "proposal_generated"
	StateApplied           ResolutionState = "applied"
	StateSuccessful        ResolutionState = "successful"
	StateReverted          ResolutionState = "reverted"
	StateRejected          ResolutionState = "rejected"
)

// ImpactTier grades how strongly a change is felt.
type ImpactTier string

const (
	ImpactNone   ImpactTier = "none"
	ImpactLow    ImpactTier = "low"
	ImpactMedium ImpactTier = "medium"
	ImpactHigh   ImpactTier = "high"
)

// Rank orders tiers from 0 (none) to 3 (high).
func (t ImpactTier) Rank() int {
	switch t {
	case ImpactLow:
		return 1
	case ImpactMedium:
		return 2
	case ImpactHigh:
		return 3
	}
	return 0
}

// AssignmentChange is the before and after state of one job. A nil Before
// means the job was unassigned, a nil After means it becomes unassigned.
type AssignmentChange struct {
	JobID  string               `json:"job_id"`
	Before *OptimizedAssignment `json:"before,omitempty"`
	After  *OptimizedAssignment `json:"after,omitempty"`
}

// ResolutionImpact is the estimated effect of applying a resolution.
// CostImpact is in miles; values <= 0 are savings.
type ResolutionImpact struct {
	CostImpact          float64    `json:"cost_impact"`
	TimeImpactMinutes   int        `json:"time_impact_minutes"`
	CustomerImpact      ImpactTier `json:"customer_impact"`
	TeamImpact          ImpactTier `json:"team_impact"`
	AffectedAssignments int        `json:"affected_assignments"`

	// Used to fill history metrics on apply.
	EfficiencyGain      float64 `json:"efficiency_gain"`
	AffectedTeamMembers int     `json:"affected_team_members"`
}

// ConflictResolution is a proposed change addressing one conflict.
type ConflictResolution struct {
	ID            string             `json:"id"`
	ConflictID    string             `json:"conflict_id"`
	Conflict      SchedulingConflict `json:"conflict"`
	Strategy      ResolutionStrategy `json:"strategy"`
	State         ResolutionState    `json:"state"`
	Changes       []AssignmentChange `json:"changes"`
	Impact        ResolutionImpact   `json:"impact"`
	RequiresInput bool               `json:"requires_input"`
	BaseVersion   int                `json:"base_version"`
	ProposedAt    time.Time          `json:"proposed_at"`
}
