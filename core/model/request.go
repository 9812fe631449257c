package model

import (
	"fmt"
	"time"
)

// Reasons a job is left unassigned. When several candidates are rejected
// the most advanced rejection wins, in the order listed.
const (
	ReasonDeadline          = "deadline"
	ReasonMissingCoordinate = "missing_coordinate"
	ReasonNoCandidate       = "no_candidate"
	ReasonRegion            = "region"
	ReasonCapacity          = "capacity"
	ReasonSpecialization    = "specialization"
	ReasonAvailability      = "availability"
	ReasonWorkingHours      = "working_hours"
	ReasonOverlap           = "overlap"
	ReasonDistance          = "distance"
	ReasonNoAssistant       = "no_assistant"
)

// SchedulingRequest is the complete input of one optimization pass.
type SchedulingRequest struct {
	Jobs                []Job                 `json:"jobs"`
	Teams               []TeamMember          `json:"teams"`
	Constraints         Constraints           `json:"constraints"`
	Preferences         Preferences           `json:"preferences"`
	ExistingAssignments []OptimizedAssignment `json:"existing_assignments,omitempty"`
	// AsOf stamps AssignedAt on produced assignments.
	AsOf time.Time `json:"as_of,omitempty"`
}

// Validate rejects empty or malformed requests. Every member must end up
// with a daily capacity from its own limit, the global limit or its override.
func (r SchedulingRequest) Validate() error {
	if len(r.Jobs) == 0 {
		return Invalid("jobs", "at least one job is required")
	}
	if len(r.Teams) == 0 {
		return Invalid("teams", "at least one team member is required")
	}
	jobs := make(map[string]struct{}, len(r.Jobs))
	for _, j := range r.Jobs {
		if err := j.Validate(); err != nil {
			return err
		}
		if _, dup := jobs[j.ID]; dup {
			return Invalid("jobs", "duplicate job id %s", j.ID)
		}
		jobs[j.ID] = struct{}{}
	}
	teams := make(map[string]struct{}, len(r.Teams))
	for _, t := range r.Teams {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := teams[t.ID]; dup {
			return Invalid("teams", "duplicate team id %s", t.ID)
		}
		teams[t.ID] = struct{}{}
	}
	if err := r.Constraints.Validate(); err != nil {
		return err
	}
	if err := r.Preferences.Validate(); err != nil {
		return err
	}
	if err := CheckUnique(r.ExistingAssignments); err != nil {
		return err
	}
	for _, a := range r.ExistingAssignments {
		if _, ok := jobs[a.JobID]; !ok {
			return Invalid("existing_assignments", "unknown job %s", a.JobID)
		}
		for _, m := range a.Members() {
			if _, ok := teams[m]; !ok {
				return Invalid("existing_assignments", "job %s references unknown team %s", a.JobID, m)
			}
		}
		if !a.End.After(a.Start) {
			return Invalid("existing_assignments", "job %s has an empty window", a.JobID)
		}
	}
	for _, t := range r.Teams {
		if r.Constraints.CapacityFor(t) == 0 {
			return Invalid("team."+t.ID+".capacity_per_day", "no daily capacity: set capacity_per_day or constraints.max_jobs_per_day")
		}
	}
	return nil
}

// JobIndex maps job IDs to jobs.
func (r SchedulingRequest) JobIndex() map[string]Job {
	out := make(map[string]Job, len(r.Jobs))
	for _, j := range r.Jobs {
		out[j.ID] = j
	}
	return out
}

// TeamIndex maps member IDs to members.
func (r SchedulingRequest) TeamIndex() map[string]TeamMember {
	out := make(map[string]TeamMember, len(r.Teams))
	for _, t := range r.Teams {
		out[t.ID] = t
	}
	return out
}

// Stamp returns the time recorded as AssignedAt: AsOf, or midnight of the
// earliest job date.
func (r SchedulingRequest) Stamp() time.Time {
	if !r.AsOf.IsZero() {
		return r.AsOf
	}
	var first time.Time
	for _, j := range r.Jobs {
		if first.IsZero() || j.ScheduledStart.Before(first) {
			first = j.ScheduledStart
		}
	}
	y, m, d := first.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, first.Location())
}

// OptimizationMetrics summarize an assignment set.
type OptimizationMetrics struct {
	TotalTravelDistance  float64 `json:"total_travel_distance"`
	TotalTravelMinutes   int     `json:"total_travel_minutes"`
	UtilizationRate      float64 `json:"utilization_rate"`
	GeographicEfficiency float64 `json:"geographic_efficiency"`
	WorkloadVariance     float64 `json:"workload_variance"`
	AverageJobsPerMember float64 `json:"average_jobs_per_member"`
	AssignedJobs         int     `json:"assigned_jobs"`
	UnassignedJobs       int     `json:"unassigned_jobs"`
	TotalCapacity        int     `json:"total_capacity"`
}

// UnassignedJob is a job the optimizer could not place and why.
type UnassignedJob struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

func (u UnassignedJob) String() string { return fmt.Sprintf("%s: %s", u.JobID, u.Reason) }

// SchedulingResult is the output of one optimization pass.
type SchedulingResult struct {
	Assignments         []OptimizedAssignment            `json:"assignments"`
	Conflicts           []SchedulingConflict             `json:"conflicts"`
	OptimizationMetrics OptimizationMetrics              `json:"optimization_metrics"`
	ScheduleByDate      map[string][]OptimizedAssignment `json:"schedule_by_date"`
	Unassigned          []UnassignedJob                  `json:"unassigned"`
}

// NeedsAttention is the number of jobs without an assignment.
func (r SchedulingResult) NeedsAttention() int { return len(r.Unassigned) }
