package model

import (
	"sort"
	"time"
)

// OptimizedAssignment binds a job to a lead and optionally an assistant.
// Records are never mutated once returned; changes produce new records.
type OptimizedAssignment struct {
	JobID                   string    `json:"job_id"`
	LeadID                  string    `json:"lead_id"`
	AssistantID             string    `json:"assistant_id,omitempty"`
	Start                   time.Time `json:"start"`
	End                     time.Time `json:"end"`
	EstimatedTravelDistance float64   `json:"estimated_travel_distance"`
	EstimatedTravelMinutes  int       `json:"estimated_travel_minutes"`
	EfficiencyScore         Score     `json:"efficiency_score"`
	WorkloadScore           Score     `json:"workload_score"`
	BufferMinutes           int       `json:"buffer_minutes"`
	PreviousJobID           string    `json:"previous_job_id,omitempty"`
	AssignedAt              time.Time `json:"assigned_at"`
}

// Window returns the occupied time window without buffer.
func (a OptimizedAssignment) Window() TimeWindow { return TimeWindow{Start: a.Start, End: a.End} }

// Date returns the calendar date of the assignment start.
func (a OptimizedAssignment) Date() string { return DateKey(a.Start) }

// Members returns the lead followed by the assistant when present.
func (a OptimizedAssignment) Members() []string {
	if a.AssistantID == "" {
		return []string{a.LeadID}
	}
	return []string{a.LeadID, a.AssistantID}
}

// Involves reports whether teamID is the lead or the assistant.
func (a OptimizedAssignment) Involves(teamID string) bool {
	return a.LeadID == teamID || (a.AssistantID != "" && a.AssistantID == teamID)
}

// SortAssignments orders assignments by start, lead and job ID in place.
func SortAssignments(as []OptimizedAssignment) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].Start.Equal(as[j].Start) {
			return as[i].Start.Before(as[j].Start)
		}
		if as[i].LeadID != as[j].LeadID {
			return as[i].LeadID < as[j].LeadID
		}
		return as[i].JobID < as[j].JobID
	})
}

// AssignmentSnapshot is an immutable, versioned assignment set.
type AssignmentSnapshot struct {
	Version     int                   `json:"version"`
	Assignments []OptimizedAssignment `json:"assignments"`
	CreatedAt   time.Time             `json:"created_at"`
}

// NewSnapshot copies as into a new snapshot.
func NewSnapshot(version int, as []OptimizedAssignment, at time.Time) AssignmentSnapshot {
	cp := make([]OptimizedAssignment, len(as))
	copy(cp, as)
	return AssignmentSnapshot{Version: version, Assignments: cp, CreatedAt: at}
}

// Assignment returns the assignment of jobID.
func (s AssignmentSnapshot) Assignment(jobID string) (OptimizedAssignment, bool) {
	for _, a := range s.Assignments {
		if a.JobID == jobID {
			return a, true
		}
	}
	return OptimizedAssignment{}, false
}

// Copy returns a deep copy of the assignment slice.
func (s AssignmentSnapshot) Copy() []OptimizedAssignment {
	cp := make([]OptimizedAssignment, len(s.Assignments))
	copy(cp, s.Assignments)
	return cp
}

// ByDate groups assignments by calendar date, each day ordered by start.
func ByDate(as []OptimizedAssignment) map[string][]OptimizedAssignment {
	out := make(map[string][]OptimizedAssignment)
	for _, a := range as {
		out[a.Date()] = append(out[a.Date()], a)
	}
	for _, day := range out {
		SortAssignments(day)
	}
	return out
}

// CheckUnique verifies that each job appears at most once.
func CheckUnique(as []OptimizedAssignment) error {
	seen := make(map[string]struct{}, len(as))
	for _, a := range as {
		if _, ok := seen[a.JobID]; ok {
			return Invalid("assignments", "job %s assigned more than once", a.JobID)
		}
		seen[a.JobID] = struct{}{}
		if a.LeadID == "" {
			return Invalid("assignments."+a.JobID, "lead is required")
		}
		if a.AssistantID == a.LeadID {
			return Invalid("assignments."+a.JobID, "assistant cannot be the lead")
		}
	}
	return nil
}
